package httpx

import (
	"errors"
	"net/http"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/service/identity"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/service/profile"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/validate"
	jwtpkg "github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/jwt"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/logger"
)

const (
	msgSessionExpired = "session expired"
	msgInvalidToken   = "invalid token"
	msgInternal       = "internal server error"
)

// writeServiceError maps core errors onto status codes. Anything not
// recognised is logged and answered with a generic 500.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		writeFieldErrors(w, verr.Fields)
	case errors.Is(err, identity.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, identity.ErrDuplicateEmail.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, identity.ErrInvalidCredentials.Error())
	case errors.Is(err, jwtpkg.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, msgSessionExpired)
	case errors.Is(err, jwtpkg.ErrTokenInvalid), errors.Is(err, jwtpkg.ErrTokenMalformed):
		writeError(w, http.StatusUnauthorized, msgInvalidToken)
	case errors.Is(err, profile.ErrNotFound):
		writeError(w, http.StatusNotFound, profile.ErrNotFound.Error())
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", logger.Sanitize(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
