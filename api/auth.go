package api

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"taskboard/domain"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	envAuth0TestMode    = "AUTH0_TEST_MODE"
	envTestJWTSecret    = "TEST_JWT_SECRET"
	envLocalAuthMode    = "LOCAL_AUTH_MODE"
	envLocalAuthSecret  = "LOCAL_AUTH_SHARED_SECRET"
	envJWKSCacheTTL     = "JWKS_CACHE_TTL"
)

// Auth validates bearer tokens and resolves the principal they carry.
// RS256 tokens are checked against a JWKS; local and test setups use a shared
// HS256 secret instead.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth, switching to HS256 when LOCAL_AUTH_MODE=hs256 or
// AUTH0_TEST_MODE=1 is set. Misconfiguration panics at startup.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer, keyCacheTTL: parseCacheTTL()}

	switch mode := strings.ToLower(os.Getenv(envLocalAuthMode)); {
	case mode == "hs256":
		a.useSecret(os.Getenv(envLocalAuthSecret), "LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
	case mode != "":
		panic("unsupported LOCAL_AUTH_MODE value")
	case os.Getenv(envAuth0TestMode) == "1":
		a.useSecret(os.Getenv(envTestJWTSecret), "TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
	}

	method := "RS256"
	if a.TestMode {
		method = "HS256"
	}
	a.parser = jwt.NewParser(jwt.WithValidMethods([]string{method}))
	return a
}

func (a *Auth) useSecret(secret, missing string) {
	if secret == "" {
		panic(missing)
	}
	a.TestMode = true
	a.TestSecret = []byte(secret)
}

func parseCacheTTL() time.Duration {
	raw := os.Getenv(envJWKSCacheTTL)
	if raw == "" {
		return defaultJWKSCacheTTL
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl <= 0 {
		panic("invalid JWKS_CACHE_TTL")
	}
	return ttl
}

// PrincipalFromAuthHeader resolves the principal behind an Authorization header value.
func (a *Auth) PrincipalFromAuthHeader(h string) (domain.Principal, error) {
	token, err := bearerTokenFromString(h)
	if err != nil {
		return domain.Principal{}, err
	}
	return a.PrincipalFromBearer(token)
}

// PrincipalFromBearer validates a compact JWT. The display name is taken from
// the name, nickname or email claim, in that order.
func (a *Auth) PrincipalFromBearer(token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, errBadAuthorization
	}
	parsed, err := a.parser.Parse(token, a.keyFunc)
	if err != nil {
		return domain.Principal{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Principal{}, errors.New("invalid claims")
	}
	if err := a.verify(claims); err != nil {
		return domain.Principal{}, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.Principal{}, errors.New("missing sub")
	}
	p := domain.Principal{ID: sub}
	for _, k := range []string{"name", "nickname", "email"} {
		if v, _ := claims[k].(string); v != "" {
			p.Name = v
			break
		}
	}
	return p, nil
}

// verify applies a one-minute leeway to the time-based claims.
func (a *Auth) verify(claims jwt.MapClaims) error {
	now := time.Now().Add(time.Minute).Unix()
	switch {
	case !claims.VerifyExpiresAt(now, true):
		return errors.New("token expired")
	case !claims.VerifyNotBefore(now, false):
		return errors.New("token not valid yet")
	case !claims.VerifyIssuedAt(now, false):
		return errors.New("token used before issued")
	case a.Audience != "" && !claims.VerifyAudience(a.Audience, false):
		return errors.New("invalid audience")
	case a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false):
		return errors.New("invalid issuer")
	}
	return nil
}

func (a *Auth) keyFunc(t *jwt.Token) (any, error) {
	if a.TestMode {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.TestSecret, nil
	}
	return a.keyForToken(t)
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
