package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/entityconfig/model"
)

// defaultRequestAction is used when a config request names no action.
const defaultRequestAction = "get"

// ConfigResolver resolves and caches entity configs.
type ConfigResolver interface {
	GetConfig(ctx context.Context, className, version, requestType, requestAction string) (model.Config, error)
	Reset(ctx context.Context) error
}

func handleGetConfig(configs ConfigResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		className := r.URL.Query().Get("class")
		if className == "" {
			WriteError(w, model.NewBadRequestError("query parameter class is required"))
			return
		}
		action := r.URL.Query().Get("action")
		if action == "" {
			action = defaultRequestAction
		}

		cfg, err := configs.GetConfig(r.Context(), className,
			chi.URLParam(r, "version"), chi.URLParam(r, "requestType"), action)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg)
	}
}

func handleResetConfigCache(configs ConfigResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := configs.Reset(r.Context()); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
