package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/auth"
	"github.com/xenking/ogani-checkout/internal/domain/user"
)

// HeaderAPIKey carries a raw API key.
const HeaderAPIKey = "api_key"

// Authenticator resolves request credentials to an auth.Identity. It accepts
// an API key in the api_key header, hashed with HMAC-SHA256 under a server
// pepper, or an HS256 bearer token whose subject is the user id.
type Authenticator struct {
	apikeys   auth.Repository
	users     user.Repository
	pepper    []byte
	jwtSecret []byte
}

// NewAuthenticator creates an Authenticator. Bearer tokens are rejected when
// jwtSecret is empty.
func NewAuthenticator(apikeys auth.Repository, users user.Repository, pepper, jwtSecret []byte) *Authenticator {
	return &Authenticator{
		apikeys:   apikeys,
		users:     users,
		pepper:    pepper,
		jwtSecret: jwtSecret,
	}
}

// Authenticate returns the caller's identity or an error matching
// apperr.ErrUnauthenticated.
func (a *Authenticator) Authenticate(r *http.Request) (auth.Identity, error) {
	ctx := r.Context()
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return a.fromAPIKey(ctx, key)
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return a.fromToken(token)
	}
	return auth.Identity{}, errors.Wrap(apperr.ErrUnauthenticated, "no credentials")
}

func (a *Authenticator) fromAPIKey(ctx context.Context, key string) (auth.Identity, error) {
	hash := auth.HashKey(a.pepper, key)
	info, err := a.apikeys.FindByHash(ctx, hash)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return auth.Identity{}, errors.Wrap(apperr.ErrUnauthenticated, "unknown api key")
	case err != nil:
		return auth.Identity{}, errors.Wrap(err, "find api key")
	}

	// The stored row must carry exactly the hash we computed.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return auth.Identity{}, errors.Wrap(apperr.ErrUnauthenticated, "api key mismatch")
	}

	u, err := a.users.GetByID(ctx, info.UserID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return auth.Identity{}, errors.Wrap(apperr.ErrUnauthenticated, "api key owner gone")
	case err != nil:
		return auth.Identity{}, errors.Wrap(err, "get api key owner")
	}
	return auth.Identity{
		UserID: u.ID,
		Admin:  u.Role == user.RoleAdmin || info.HasScope(auth.ScopeAdmin),
	}, nil
}

// Claims is the bearer token payload.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (a *Authenticator) fromToken(raw string) (auth.Identity, error) {
	if len(a.jwtSecret) == 0 {
		return auth.Identity{}, errors.Wrap(apperr.ErrUnauthenticated, "bearer tokens disabled")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return a.jwtSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return auth.Identity{}, errors.Wrapf(apperr.ErrUnauthenticated, "invalid token: %v", err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return auth.Identity{}, errors.Wrap(apperr.ErrUnauthenticated, "invalid token subject")
	}
	return auth.Identity{UserID: id, Admin: claims.Role == string(user.RoleAdmin)}, nil
}

// SignToken issues an HS256 token for the user valid for ttl.
func SignToken(secret []byte, userID int64, role user.Role, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}
