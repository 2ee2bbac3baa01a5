package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cli, err := New(srv.URL)
	require.NoError(t, err)
	return cli
}

func TestNew_NormalisesBaseURL(t *testing.T) {
	cli, err := New("localhost:4000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", cli.baseURL)

	cli, err = New("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", cli.baseURL)
}

func TestRegisterAndLogin(t *testing.T) {
	cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/register":
			var in RegisterInput
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "123456789012", in.SensitiveID)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"success":true,"message":"user registered","userId":"u-1"}`))
		case "/api/auth/login":
			_, _ = w.Write([]byte(`{"success":true,"token":"tok","expiresAt":"2030-01-01T00:00:00Z","user":{"id":"u-1","email":"ada@example.com"}}`))
		default:
			http.NotFound(w, r)
		}
	})

	reg, err := cli.Register(context.Background(), RegisterInput{Email: "ada@example.com", Password: "pw", SensitiveID: "123456789012"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", reg.UserID)

	login, err := cli.Login(context.Background(), " ada@example.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", login.Token)
	assert.Equal(t, "u-1", login.User.ID)
	assert.Equal(t, 2030, login.ExpiresAt.Year())
}

func TestProfileSendsBearerToken(t *testing.T) {
	cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid token"}`))
			return
		}
		if r.Method == http.MethodPut {
			var upd map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
			assert.Equal(t, map[string]any{"lastName": "King"}, upd)
		}
		_, _ = w.Write([]byte(`{"success":true,"profile":{"id":"u-1","sensitiveId":"123456789012","lastName":"King"}}`))
	})

	p, err := cli.GetProfile(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "123456789012", p.SensitiveID)

	last := "King"
	p, err = cli.UpdateProfile(context.Background(), "tok", ProfileUpdate{LastName: &last})
	require.NoError(t, err)
	assert.Equal(t, "King", p.LastName)

	_, err = cli.GetProfile(context.Background(), "bad")
	var apiErr APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid token", apiErr.Message)
}

func TestVerifyPassword(t *testing.T) {
	cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case r.Header.Get("Authorization") != "Bearer tok":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"session expired"}`))
		case body["password"] == "right":
			_, _ = w.Write([]byte(`{"verified":true}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"verified":false,"error":"password verification failed"}`))
		}
	})

	ok, err := cli.VerifyPassword(context.Background(), "tok", "right")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cli.VerifyPassword(context.Background(), "tok", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = cli.VerifyPassword(context.Background(), "old", "right")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")
}

func TestAPIErrorIncludesFields(t *testing.T) {
	cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"validation failed","fields":{"email":"is invalid","password":"is too short"}}`))
	})
	_, err := cli.Register(context.Background(), RegisterInput{})
	var apiErr APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "is invalid", apiErr.Fields["email"])
	assert.True(t, strings.HasSuffix(err.Error(), "email is invalid; password is too short"))
}
