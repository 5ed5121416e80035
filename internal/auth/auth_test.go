package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerify(t *testing.T) {
	v := NewVerifier(secret, "")
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    models.Principal
		wantErr bool
	}{
		{
			name:  "id claim",
			token: sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": "u1", "username": "ada", "exp": future}),
			want:  models.Principal{OwnerID: "u1", Username: "ada"},
		},
		{
			name:  "sub fallback",
			token: sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "u2"}),
			want:  models.Principal{OwnerID: "u2"},
		},
		{
			name:  "numeric id",
			token: sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": 42}),
			want:  models.Principal{OwnerID: "42"},
		},
		{
			name:    "wrong secret",
			token:   sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"id": "u1"}),
			wantErr: true,
		},
		{
			name:    "wrong algorithm",
			token:   sign(t, jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{"id": "u1"}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": "u1", "exp": time.Now().Add(-time.Minute).Unix()}),
			wantErr: true,
		},
		{
			name:    "no subject",
			token:   sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"username": "ada"}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not.a.jwt",
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromRequest(t *testing.T) {
	v := NewVerifier(secret, "token")
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": "u1"})

	cookie := httptest.NewRequest(http.MethodGet, "/", nil)
	cookie.AddCookie(&http.Cookie{Name: "token", Value: token})
	p, err := v.FromRequest(cookie)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.OwnerID)

	bearer := httptest.NewRequest(http.MethodGet, "/", nil)
	bearer.Header.Set("Authorization", "Bearer "+token)
	p, err = v.FromRequest(bearer)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.OwnerID)

	none := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = v.FromRequest(none)
	assert.ErrorIs(t, err, types.ErrUnauthenticated)
}
