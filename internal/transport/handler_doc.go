package transport

import (
	"context"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

// DocBuilder renders the API document of a request type and version.
type DocBuilder interface {
	Build(ctx context.Context, requestType, version string) (*openapi3.T, error)
}

func handleAPIDoc(docs DocBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := docs.Build(r.Context(), chi.URLParam(r, "requestType"), chi.URLParam(r, "version"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, doc)
	}
}
