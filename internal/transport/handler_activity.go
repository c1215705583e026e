package transport

import (
	"net/http"

	"github.com/pitabwire/entityconfig/internal/activity"
	"github.com/pitabwire/entityconfig/model"
)

// ActivityLister lists the activities enabled for an entity class.
type ActivityLister interface {
	ApplicableActivities(className string) []activity.Provider
}

func handleActivities(activities ActivityLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		className := r.URL.Query().Get("class")
		if className == "" {
			WriteError(w, model.NewBadRequestError("query parameter class is required"))
			return
		}

		providers := activities.ApplicableActivities(className)
		out := make([]activity.Descriptor, 0, len(providers))
		for _, p := range providers {
			out = append(out, activity.Describe(p))
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": out})
	}
}
