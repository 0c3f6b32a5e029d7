package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/engine/auth"
	"fieldline/internal/repo"
)

const devTokenTTL = 12 * time.Hour

type AuthConfig struct {
	JWTSecret string
	// AllowRoleHeader trusts X-Role and X-Actor-Id without credentials.
	// Local development only.
	AllowRoleHeader bool
	Logger          *log.Logger
}

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// requireRole returns the caller when it holds one of roles; no roles means
// any authenticated caller.
func requireRole(ctx context.Context, roles ...domain.Role) (auth.Principal, error) {
	p, ok := principalFromContext(ctx)
	if !ok || p.ActorID == "" {
		return auth.Principal{}, errNoCredentials
	}
	if err := auth.Require(p, roles...); err != nil {
		return p, handleError(err)
	}
	return p, nil
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func authenticateJWT(token string, secret string) (auth.Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return auth.Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return auth.Principal{}, err
	}
	if !parsed.Valid {
		return auth.Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return auth.Principal{}, errors.New("subject claim required")
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{ActorID: claims.Subject, Role: role, Source: "jwt"}, nil
}

// signDevToken mints an HS256 token carrying the actor and its role.
func signDevToken(secret, actorID string, role domain.Role, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = devTokenTTL
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// SignToken is exported for the CLI.
func SignToken(secret, actorID string, role domain.Role, ttl time.Duration) (string, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return "", err
	}
	return signDevToken(secret, actorID, role, ttl)
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (auth.Principal, error) {
	if strings.TrimSpace(key) == "" {
		return auth.Principal{}, errors.New("api key required")
	}
	apiKey, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return auth.Principal{}, err
	}
	if apiKey.ActorID == "" {
		return auth.Principal{}, errors.New("api key missing actor")
	}
	return auth.Principal{ActorID: apiKey.ActorID, Role: apiKey.Role, Source: "api_key"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// authenticator resolves the caller of every API request. Credentials are
// tried in order: bearer token, API key, then the development role header.
type authenticator struct {
	basePath string
	open     map[string]bool
	cfg      AuthConfig
	repo     repo.Repo
}

var (
	errNoCredentials  = newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	errBadCredentials = newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
)

func (a authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.URL.Path, a.basePath) || a.open[req.URL.Path] {
			next.ServeHTTP(w, req)
			return
		}
		p, err := a.authenticate(req)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), p)))
	})
}

func (a authenticator) authenticate(req *http.Request) (auth.Principal, huma.StatusError) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		token, ok := bearerToken(authz)
		if !ok {
			return auth.Principal{}, errBadCredentials
		}
		p, err := authenticateJWT(token, a.cfg.JWTSecret)
		if err != nil {
			return auth.Principal{}, errBadCredentials
		}
		return p, nil
	}
	if key := strings.TrimSpace(req.Header.Get("X-Api-Key")); key != "" {
		p, err := authenticateAPIKey(req.Context(), a.repo, key)
		if err != nil {
			return auth.Principal{}, errBadCredentials
		}
		return p, nil
	}
	role := strings.TrimSpace(req.Header.Get("X-Role"))
	if role == "" || !a.cfg.AllowRoleHeader {
		return auth.Principal{}, errNoCredentials
	}
	actor := strings.TrimSpace(req.Header.Get("X-Actor-Id"))
	if actor == "" {
		actor = role
	}
	a.cfg.logger().Printf("WARNING: trusting X-Role header without credentials (actor_id=%s role=%s)", actor, role)
	return auth.Principal{ActorID: actor, Role: domain.Role(role), Source: "role_header"}, nil
}
