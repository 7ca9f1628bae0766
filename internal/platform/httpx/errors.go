package httpx

import (
	"errors"
	"net/http"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unmapped errors are reported as opaque internal errors.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
