package httpx

import (
	"errors"
	"net/http"

	"github.com/kirim-crm/kirim-crm/internal/shared"
)

// RespondError maps domain errors to RFC7807 problem responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrEmailTaken):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrAccountInactive):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, shared.ErrCSRFTokenMissing), errors.Is(err, shared.ErrCSRFTokenMismatch):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
