package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postpartum-htn-backend/config"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/mw"
)

func bearer(t *testing.T, secret, user string, role model.Role) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mw.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(role),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestAuth_SecretRequiresToken(t *testing.T) {
	const secret = "s3cret"
	ts := newServer(t, config.AuthConfig{JWTSecret: secret}, nil)

	send := func(method, path, authorization string, body []byte) *httptest.ResponseRecorder {
		req, err := http.NewRequest(method, path, bytes.NewReader(body))
		require.NoError(t, err)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		return w
	}

	token := bearer(t, secret, "nurse-ana", model.RoleNurse)
	w := send(http.MethodPost, "/api/patients", token, []byte(`{"room_number":"4"}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p model.Patient
	decode(t, w, &p)

	reads := []string{
		"/api/patients",
		"/api/patients/" + p.ID,
		"/api/patients/" + p.ID + "/case",
		"/api/patients/" + p.ID + "/audit",
		"/api/notifications?role=nurse",
	}
	for _, path := range reads {
		w := send(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Contains(t, w.Body.String(), "MISSING_ACTOR", path)

		w = send(http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	// Header identities are not trusted once tokens are configured.
	req, err := http.NewRequest(http.MethodGet, "/api/patients", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "nurse-ana")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = send(http.MethodGet, "/api/patients", bearer(t, "other", "nurse-ana", model.RoleNurse), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = send(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
