package transport

import (
	"encoding/json"
	"net/http"

	"github.com/pitabwire/entityconfig/internal/joinopt"
	"github.com/pitabwire/entityconfig/model"
)

// maxOptimizeBody bounds the size of a join optimization request.
const maxOptimizeBody = 1 << 20

type optimizeRequest struct {
	Joins      []joinopt.Join  `json:"joins"`
	Expression json.RawMessage `json:"expression"`
}

type optimizeResponse struct {
	Joins  []joinopt.Join `json:"joins"`
	Fields []string       `json:"fields"`
}

func handleOptimizeJoins(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOptimizeBody)).Decode(&req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}
	if len(req.Expression) == 0 {
		WriteError(w, model.NewBadRequestError("expression is required"))
		return
	}

	expr, err := joinopt.Decode(req.Expression)
	if err != nil {
		WriteError(w, err)
		return
	}
	joins, fields, err := joinopt.Optimize(req.Joins, expr)
	if err != nil {
		WriteError(w, err)
		return
	}
	if joins == nil {
		joins = []joinopt.Join{}
	}
	if fields == nil {
		fields = []string{}
	}
	WriteJSON(w, http.StatusOK, optimizeResponse{Joins: joins, Fields: fields})
}
