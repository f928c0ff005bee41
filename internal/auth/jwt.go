package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leok974/ApplyLens-sub019/internal/utils"
)

type contextKey string

const identityKey contextKey = "auth.identity"

// Verifier validates HS256 bearer tokens for the mutating admin surface:
// policy replacement and approval decisions. The token subject is the
// operator identity recorded on decisions.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a token verifier. An empty issuer skips the issuer
// claim check.
func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Verifier{secret: secret, issuer: issuer}, nil
}

// VerifyToken parses and validates a token string, returning the subject.
func (v *Verifier) VerifyToken(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

// IssueToken mints a token for the given subject. Used by tests and local
// tooling; production deployments bring their own issuer.
func (v *Verifier) IssueToken(subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// token subject in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			utils.RespondWithError(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		subject, err := v.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "invalid bearer token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the verified subject, or "" when the request
// did not pass through the middleware.
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey).(string)
	return identity
}
