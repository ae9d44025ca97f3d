// internal/app/system/auth/auth.go
// Package auth verifies the bearer credential presented on REST calls and on
// the real-time handshake, and carries the verified user in the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// Session cookie keys written by the login UI. The API only reads them.
const (
	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
	userName  = "user_name"
	userRole  = "user_role"
)

var (
	// ErrUnauthenticated is returned when no valid credential is present.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRevoked is returned for a well-formed token whose id has been revoked.
	ErrRevoked = errors.New("token revoked")
)

// User is the verified caller.
type User struct {
	ID      string
	Name    string
	Role    string
	TokenID string
}

// Claims is the JWT payload issued by the login service.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RevocationList reports whether a token id was revoked before its expiry.
type RevocationList interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Config configures an Authenticator.
type Config struct {
	JWTSecret   string
	SessionKey  string // optional; enables the cookie-session fallback
	SessionName string
	Revocations RevocationList // optional
}

// Authenticator verifies bearer tokens, falling back to the login UI's
// session cookie when no token is presented.
type Authenticator struct {
	secret      []byte
	cookies     *sessions.CookieStore
	sessionName string
	revocations RevocationList
	log         *zap.Logger
}

// NewAuthenticator builds an Authenticator from cfg.
func NewAuthenticator(cfg Config, logger *zap.Logger) (*Authenticator, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if len(cfg.JWTSecret) < 32 {
		logger.Warn("jwt secret is short; 32+ chars recommended",
			zap.Int("length", len(cfg.JWTSecret)))
	}

	a := &Authenticator{
		secret:      []byte(cfg.JWTSecret),
		sessionName: cfg.SessionName,
		revocations: cfg.Revocations,
		log:         logger,
	}
	if cfg.SessionKey != "" && cfg.SessionName != "" {
		a.cookies = sessions.NewCookieStore([]byte(cfg.SessionKey))
	}
	return a, nil
}

// IssueToken signs a token for u that expires after ttl. Production tokens
// come from the login service; this exists for tooling and tests.
func (a *Authenticator) IssueToken(u User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: u.Name,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        u.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifyToken parses and validates a bearer token.
func (a *Authenticator) VerifyToken(ctx context.Context, raw string) (*User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" || claims.Name == "" {
		return nil, fmt.Errorf("%w: missing subject or name", ErrUnauthenticated)
	}

	if a.revocations != nil && claims.ID != "" {
		revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			// Fail closed: an unreachable revocation list rejects the credential.
			a.log.Error("revocation check failed", zap.Error(err))
			return nil, fmt.Errorf("%w: revocation check failed", ErrUnauthenticated)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}

	return &User{
		ID:      claims.Subject,
		Name:    claims.Name,
		Role:    strings.ToLower(claims.Role),
		TokenID: claims.ID,
	}, nil
}

// Authenticate resolves the caller of r. Tokens are read from the
// Authorization header, then the "token" query parameter (browsers cannot
// set headers on a websocket handshake), then the session cookie.
func (a *Authenticator) Authenticate(r *http.Request) (*User, error) {
	if raw := bearerToken(r); raw != "" {
		return a.VerifyToken(r.Context(), raw)
	}
	if a.cookies != nil {
		sess, err := a.cookies.Get(r, a.sessionName)
		if err == nil {
			if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
				u := &User{
					ID:   getString(sess, userIDKey),
					Name: getString(sess, userName),
					Role: strings.ToLower(getString(sess, userRole)),
				}
				if u.ID != "" {
					return u, nil
				}
			}
		}
	}
	return nil, ErrUnauthenticated
}

// LoadUser injects the caller into the context when a credential verifies.
// Requests without a valid credential pass through unauthenticated.
func (a *Authenticator) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Authenticate(r)
		if err == nil {
			r = r.WithContext(WithUser(r.Context(), u))
		} else if !errors.Is(err, ErrUnauthenticated) || bearerToken(r) != "" {
			a.log.Debug("credential rejected", zap.Error(err))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn rejects requests without a user in context with a 401.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			respond.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, currentUserKey, u)
}

// FromContext returns the user stored in ctx.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(currentUserKey).(*User)
	return u, ok && u != nil
}

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*User, bool) {
	return FromContext(r.Context())
}

// WithTestUser injects u into r's context. Test helper.
func WithTestUser(r *http.Request, u *User) *http.Request {
	return r.WithContext(WithUser(r.Context(), u))
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
