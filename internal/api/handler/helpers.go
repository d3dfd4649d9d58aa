package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/painscope/painscope/internal/api/response"
)

// urlUUID parses a UUID path parameter, writing a 400 on failure. The bool
// reports whether the handler should continue.
func urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			param+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
