package httpx

import (
	"context"
	"errors"
	"net/http"

	jwtpkg "github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/jwt"
)

type authContextKey string

type authInfo struct {
	UserID string
	Email  string
}

const contextKeyAuth authContextKey = "securelogin-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token, ok := jwtpkg.ExtractFromHeader(req.Header.Get("Authorization"))
	if !ok {
		r.logger.Warn("security_event", "event", "token_rejected", "reason", "missing", "path", req.URL.Path)
		r.metrics.authEvent("token", "missing")
		writeError(w, http.StatusUnauthorized, msgInvalidToken)
		return req.Context(), authInfo{}, false
	}
	claims, err := r.identity.Authorize(req.Context(), token)
	if err != nil {
		outcome := "invalid"
		if errors.Is(err, jwtpkg.ErrTokenExpired) {
			outcome = "expired"
		}
		r.logger.Warn("security_event", "event", "token_rejected", "reason", outcome, "path", req.URL.Path)
		r.metrics.authEvent("token", outcome)
		r.writeServiceError(w, req, err)
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: claims.SubjectID, Email: claims.Email}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}
