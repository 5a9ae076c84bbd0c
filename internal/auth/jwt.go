// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/middleware"
)

const (
	ScopeBot = "bot"
	ScopeOps = "ops"

	tokenType = "client"
)

// TokenManager signs and verifies bearer tokens for API clients such as
// the chat bot and operator tooling. A manager built with LoadVerifier can
// only verify.
type TokenManager struct {
	privateKey jwk.Key
	publicKey  jwk.Key
	publicJWKS jwk.Set
	config     config.JWTConfig
}

// LoadSigner reads the private key and derives the public half from it.
func LoadSigner(cfg config.JWTConfig) (*TokenManager, error) {
	privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	privateKey, err := jwk.ParseKey(privateKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	if err := prepareKey(privateKey); err != nil {
		return nil, err
	}

	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	m, err := newManager(publicKey, cfg)
	if err != nil {
		return nil, err
	}
	m.privateKey = privateKey

	return m, nil
}

func LoadVerifier(cfg config.JWTConfig) (*TokenManager, error) {
	publicKeyPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	publicKey, err := jwk.ParseKey(publicKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	if err := prepareKey(publicKey); err != nil {
		return nil, err
	}

	return newManager(publicKey, cfg)
}

// prepareKey pins ES256 and a thumbprint key id, so a signer and a
// verifier loaded from the same pair agree on "kid".
func prepareKey(key jwk.Key) error {
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return fmt.Errorf("set algorithm: %w", err)
	}
	if err := jwk.AssignKeyID(key); err != nil {
		return fmt.Errorf("assign key id: %w", err)
	}
	return nil
}

func newManager(publicKey jwk.Key, cfg config.JWTConfig) (*TokenManager, error) {
	if err := publicKey.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("set key usage: %w", err)
	}

	publicJWKS := jwk.NewSet()
	if err := publicJWKS.AddKey(publicKey); err != nil {
		return nil, fmt.Errorf("add key to set: %w", err)
	}

	return &TokenManager{
		publicKey:  publicKey,
		publicJWKS: publicJWKS,
		config:     cfg,
	}, nil
}

func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	jwkPrivate, err := jwk.Import(privateKey)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	if err := prepareKey(jwkPrivate); err != nil {
		return err
	}

	privatePEM, err := jwk.Pem(jwkPrivate)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}

	if writeErr := os.WriteFile(privateKeyPath, privatePEM, 0o600); writeErr != nil {
		return fmt.Errorf("write private key: %w", writeErr)
	}

	jwkPublic, err := jwkPrivate.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	publicPEM, err := jwk.Pem(jwkPublic)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	//nolint:gosec // G306: public key is intentionally world-readable
	if writeErr := os.WriteFile(publicKeyPath, publicPEM, 0o644); writeErr != nil {
		return fmt.Errorf("write public key: %w", writeErr)
	}

	return nil
}

func (m *TokenManager) CanSign() bool {
	return m.privateKey != nil
}

// CreateClientToken issues a token for subject carrying the given scopes.
// A zero ttl uses jwt.client_token_expire.
func (m *TokenManager) CreateClientToken(
	subject string,
	scopes []string,
	ttl time.Duration,
) (string, error) {
	if m.privateKey == nil {
		return "", fmt.Errorf("create client token: no private key loaded")
	}
	if subject == "" || len(scopes) == 0 {
		return "", fmt.Errorf("create client token: %w", core.ErrInvalidInput)
	}
	for _, scope := range scopes {
		if scope != ScopeBot && scope != ScopeOps {
			return "", fmt.Errorf("create client token: scope %q: %w", scope, core.ErrInvalidInput)
		}
	}

	if ttl <= 0 {
		ttl = m.config.ClientTokenExpire
	}
	now := time.Now()

	token, err := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		NotBefore(now).
		Claim("scope", strings.Join(scopes, " ")).
		Claim("type", tokenType).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), m.privateKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return string(signed), nil
}

func (m *TokenManager) VerifyClientToken(
	_ context.Context,
	tokenString string,
) (*middleware.ClientClaims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.ES256(), m.publicKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
	)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	var typ string
	if err := token.Get("type", &typ); err != nil || typ != tokenType {
		return nil, fmt.Errorf(
			"verify token: invalid token type: %w",
			core.ErrTokenInvalid,
		)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenInvalid,
		)
	}

	var scope string
	if err := token.Get("scope", &scope); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing scope claim: %w",
			core.ErrTokenInvalid,
		)
	}

	scopes := strings.Fields(scope)
	slices.Sort(scopes)

	return &middleware.ClientClaims{
		Subject: subject,
		Scopes:  scopes,
	}, nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}

func (m *TokenManager) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if err := json.NewEncoder(w).Encode(m.publicJWKS); err != nil {
			http.Error(
				w,
				"Internal Server Error",
				http.StatusInternalServerError,
			)
			return
		}
	}
}

func (m *TokenManager) KeyID() string {
	var kid string
	//nolint:errcheck // key ID always set by prepareKey
	_ = m.publicKey.Get(jwk.KeyIDKey, &kid)
	return kid
}
