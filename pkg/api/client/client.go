package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Client provides typed access to the SecureLogin API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+" "+e.Fields[k])
		}
		return fmt.Sprintf("api request failed (%d): %s: %s", e.Status, e.Message, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := extractError(resp.Body)
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) APIError {
	if body == nil {
		return APIError{}
	}
	var payload struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return APIError{}
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return APIError{Message: strings.TrimSpace(string(data))}
	}
	return APIError{Message: strings.TrimSpace(payload.Error), Fields: payload.Fields}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Phone       string `json:"phone,omitempty"`
	SensitiveID string `json:"sensitiveId"`
}

// RegisterResponse is returned by a successful registration.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// User reflects the public user payload returned at login.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginResponse captures the token payload emitted by the API.
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// Profile is the decrypted profile of the caller.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Phone       string    `json:"phone,omitempty"`
	SensitiveID string    `json:"sensitiveId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProfileUpdate lists fields to change. Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	SensitiveID *string `json:"sensitiveId,omitempty"`
}

type profileEnvelope struct {
	Success bool    `json:"success"`
	Profile Profile `json:"profile"`
}

const msgPasswordVerificationFailed = "password verification failed"

// Register creates an account.
func (c *Client) Register(ctx context.Context, input RegisterInput) (RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", input, "", &resp); err != nil {
		return RegisterResponse{}, err
	}
	return resp, nil
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	payload := map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", payload, "", &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

// GetProfile fetches the caller's decrypted profile.
func (c *Client) GetProfile(ctx context.Context, token string) (Profile, error) {
	var resp profileEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, token, &resp); err != nil {
		return Profile{}, err
	}
	return resp.Profile, nil
}

// UpdateProfile applies update and returns the resulting profile.
func (c *Client) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (Profile, error) {
	var resp profileEnvelope
	if err := c.do(ctx, http.MethodPut, "/api/profile", update, token, &resp); err != nil {
		return Profile{}, err
	}
	return resp.Profile, nil
}

// VerifyPassword re-checks the password of the token's owner. A wrong
// password is (false, nil); an expired or invalid token is an APIError.
func (c *Client) VerifyPassword(ctx context.Context, token, password string) (bool, error) {
	var resp struct {
		Verified bool `json:"verified"`
	}
	err := c.do(ctx, http.MethodPost, "/api/profile/verify-password", map[string]string{"password": password}, token, &resp)
	if err != nil {
		var apiErr APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && apiErr.Message == msgPasswordVerificationFailed {
			return false, nil
		}
		return false, err
	}
	return resp.Verified, nil
}
