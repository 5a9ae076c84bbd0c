// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
)

type TokenSuite struct {
	suite.Suite
	cfg      config.JWTConfig
	signer   *TokenManager
	verifier *TokenManager
}

func TestTokenSuite(t *testing.T) {
	suite.Run(t, new(TokenSuite))
}

func (s *TokenSuite) SetupTest() {
	dir := s.T().TempDir()
	s.cfg = config.JWTConfig{
		PrivateKeyPath:    filepath.Join(dir, "private.pem"),
		PublicKeyPath:     filepath.Join(dir, "public.pem"),
		ClientTokenExpire: time.Hour,
		Issuer:            "gatepass",
		Audience:          "gatepass-api",
	}
	s.Require().NoError(GenerateKeyPair(s.cfg.PrivateKeyPath, s.cfg.PublicKeyPath))

	var err error
	s.signer, err = LoadSigner(s.cfg)
	s.Require().NoError(err)
	s.verifier, err = LoadVerifier(s.cfg)
	s.Require().NoError(err)
}

func (s *TokenSuite) TestRoundTrip() {
	token, err := s.signer.CreateClientToken("bot", []string{ScopeOps, ScopeBot}, 0)
	s.Require().NoError(err)

	claims, err := s.verifier.VerifyClientToken(context.Background(), token)
	s.Require().NoError(err)
	s.Equal("bot", claims.Subject)
	s.Equal([]string{ScopeBot, ScopeOps}, claims.Scopes)
	s.True(claims.HasScope(ScopeOps))

	s.Equal(s.signer.KeyID(), s.verifier.KeyID())
	s.NotEmpty(s.verifier.KeyID())
}

func (s *TokenSuite) TestVerifierCannotSign() {
	s.False(s.verifier.CanSign())
	_, err := s.verifier.CreateClientToken("bot", []string{ScopeBot}, 0)
	s.Error(err)
}

func (s *TokenSuite) TestRejectsBadInput() {
	_, err := s.signer.CreateClientToken("", []string{ScopeBot}, 0)
	s.ErrorIs(err, core.ErrInvalidInput)

	_, err = s.signer.CreateClientToken("bot", nil, 0)
	s.ErrorIs(err, core.ErrInvalidInput)

	_, err = s.signer.CreateClientToken("bot", []string{"root"}, 0)
	s.ErrorIs(err, core.ErrInvalidInput)
}

func (s *TokenSuite) TestExpired() {
	token, err := s.signer.CreateClientToken("bot", []string{ScopeBot}, time.Nanosecond)
	s.Require().NoError(err)
	time.Sleep(1100 * time.Millisecond)

	_, err = s.verifier.VerifyClientToken(context.Background(), token)
	s.ErrorIs(err, core.ErrTokenExpired)
}

func (s *TokenSuite) TestForeignKey() {
	dir := s.T().TempDir()
	other := s.cfg
	other.PrivateKeyPath = filepath.Join(dir, "private.pem")
	other.PublicKeyPath = filepath.Join(dir, "public.pem")
	s.Require().NoError(GenerateKeyPair(other.PrivateKeyPath, other.PublicKeyPath))

	foreign, err := LoadSigner(other)
	s.Require().NoError(err)

	token, err := foreign.CreateClientToken("bot", []string{ScopeBot}, 0)
	s.Require().NoError(err)

	_, err = s.verifier.VerifyClientToken(context.Background(), token)
	s.ErrorIs(err, core.ErrTokenInvalid)
}

func (s *TokenSuite) TestWrongAudience() {
	other := s.cfg
	other.Audience = "someone-else"
	signer, err := LoadSigner(other)
	s.Require().NoError(err)

	token, err := signer.CreateClientToken("bot", []string{ScopeBot}, 0)
	s.Require().NoError(err)

	_, err = s.verifier.VerifyClientToken(context.Background(), token)
	s.ErrorIs(err, core.ErrTokenInvalid)
}

func (s *TokenSuite) TestJWKS() {
	rec := httptest.NewRecorder()
	s.verifier.JWKSHandler()(rec, httptest.NewRequest("GET", "/.well-known/jwks.json", nil))

	s.Equal(200, rec.Code)

	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body.Keys, 1)
	s.Equal("EC", body.Keys[0]["kty"])
	s.Equal(s.verifier.KeyID(), body.Keys[0]["kid"])
	s.NotContains(body.Keys[0], "d")
}
