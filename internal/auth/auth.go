package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
)

// Verifier checks HS256 session tokens issued by the account service.
type Verifier struct {
	secret     []byte
	cookieName string
}

func NewVerifier(secret, cookieName string) *Verifier {
	if cookieName == "" {
		cookieName = "token"
	}
	return &Verifier{secret: []byte(secret), cookieName: cookieName}
}

// Verify parses tokenString and returns the principal it names. The owner is
// the "id" claim, or "sub" when "id" is absent.
func (v *Verifier) Verify(tokenString string) (models.Principal, error) {
	if tokenString == "" {
		return models.Principal{}, types.ErrUnauthenticated
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return models.Principal{}, fmt.Errorf("%w: %v", types.ErrUnauthenticated, err)
	}

	owner := claimString(claims["id"])
	if owner == "" {
		owner = claimString(claims["sub"])
	}
	if owner == "" {
		return models.Principal{}, fmt.Errorf("%w: token has no subject", types.ErrUnauthenticated)
	}

	return models.Principal{
		OwnerID:  owner,
		Username: claimString(claims["username"]),
	}, nil
}

// FromRequest reads the token from the session cookie, then the
// Authorization header.
func (v *Verifier) FromRequest(r *http.Request) (models.Principal, error) {
	return v.Verify(v.tokenFrom(r))
}

func (v *Verifier) tokenFrom(r *http.Request) string {
	if c, err := r.Cookie(v.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func claimString(v interface{}) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return ""
	}
}
