package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/service/identity"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/service/profile"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/validate"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Phone       string `json:"phone"`
	SensitiveID string `json:"sensitiveId"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool              `json:"success"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      domain.PublicUser `json:"user"`
}

type profileResponse struct {
	Success bool                `json:"success"`
	Profile *domain.ProfileView `json:"profile"`
}

type updateProfileRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Phone       *string `json:"phone"`
	SensitiveID *string `json:"sensitiveId"`
}

type verifyPasswordRequest struct {
	Password string `json:"password"`
}

type verifyPasswordResponse struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	var payload registerRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	res, err := r.identity.Register(req.Context(), identity.RegisterInput{
		Email:       payload.Email,
		Password:    payload.Password,
		FirstName:   payload.FirstName,
		LastName:    payload.LastName,
		Phone:       payload.Phone,
		SensitiveID: payload.SensitiveID,
	})
	if err != nil {
		r.metrics.authEvent("register", outcomeOf(err))
		r.writeServiceError(w, req, err)
		return
	}
	r.metrics.authEvent("register", "success")
	writeJSON(w, http.StatusCreated, registerResponse{
		Success: true,
		Message: "user registered",
		UserID:  res.ID,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var payload loginRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	res, err := r.identity.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.metrics.authEvent("login", outcomeOf(err))
		r.writeServiceError(w, req, err)
		return
	}
	r.metrics.authEvent("login", "success")
	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      res.User,
	})
}

func (r *Router) handleProfileGet(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	view, err := r.profile.Get(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Success: true, Profile: view})
}

func (r *Router) handleProfileUpdate(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	var payload updateProfileRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	view, err := r.profile.Update(req.Context(), info.UserID, profile.UpdateInput{
		FirstName:   payload.FirstName,
		LastName:    payload.LastName,
		Phone:       payload.Phone,
		SensitiveID: payload.SensitiveID,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Success: true, Profile: view})
}

func (r *Router) handleVerifyPassword(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	var payload verifyPasswordRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	verified, err := r.profile.VerifyPassword(req.Context(), info.UserID, payload.Password)
	if err != nil {
		r.metrics.authEvent("step_up", outcomeOf(err))
		r.writeServiceError(w, req, err)
		return
	}
	if !verified {
		r.metrics.authEvent("step_up", "failure")
		writeJSON(w, http.StatusUnauthorized, verifyPasswordResponse{Verified: false, Error: "password verification failed"})
		return
	}
	r.metrics.authEvent("step_up", "success")
	writeJSON(w, http.StatusOK, verifyPasswordResponse{Verified: true})
}

func (r *Router) mustAuthInfo(w http.ResponseWriter, req *http.Request) (authInfo, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok || info.UserID == "" {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return authInfo{}, false
	}
	return info, true
}

// outcomeOf labels a failed auth operation for the auth_events metric.
func outcomeOf(err error) string {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		return "invalid_input"
	case errors.Is(err, identity.ErrDuplicateEmail):
		return "duplicate"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "failure"
	default:
		return "error"
	}
}
