// AngelaMos | 2026
// cli_test.go

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/carterperez-dev/gatepass/internal/auth"
	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

type CLISuite struct {
	suite.Suite
	dir string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.T().Setenv("DATABASE_DRIVER", "sqlite3")
	s.T().Setenv("DATABASE_URL", "file:"+filepath.Join(s.dir, "gatepass.sqlite"))
	s.T().Setenv("TICKET_MASTER_SECRET", "cli-test-master-secret")
	s.T().Setenv("TICKET_ISSUE_CLASS", "free")
}

func (s *CLISuite) run(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (s *CLISuite) TestMigrate() {
	out, err := s.run("migrate", "--json")
	s.Require().NoError(err)

	var body struct {
		Driver        string `json:"driver"`
		SchemaVersion int64  `json:"schema_version"`
	}
	s.Require().NoError(json.Unmarshal([]byte(out), &body))
	s.Equal(config.DriverSQLite, body.Driver)
	s.Positive(body.SchemaVersion)
}

func (s *CLISuite) TestAdminBootstrap() {
	_, err := s.run("admin", "bootstrap", "9000")
	s.Require().ErrorIs(err, core.ErrUnknownPrincipal)

	out, err := s.run("admin", "bootstrap", "9000", "--create")
	s.Require().NoError(err)
	s.Contains(out, "is now an admin")

	out, err = s.run("admin", "bootstrap", "9000")
	s.Require().NoError(err)
	s.Contains(out, "already an admin")
}

func (s *CLISuite) TestTokenMintAndVerify() {
	token, err := s.run("token", "mint", "1001")
	s.Require().NoError(err)
	token = strings.TrimSpace(token)
	s.True(strings.HasPrefix(token, "1001:"))

	out, err := s.run("token", "verify", token)
	s.Require().NoError(err)
	s.Contains(out, "principal 1001, class free")

	_, err = s.run("token", "verify", "1001:"+strings.Repeat("ab", 32))
	s.ErrorIs(err, core.ErrUnknownClass)

	_, err = s.run("token", "verify", "1001:deadbeef")
	s.ErrorIs(err, core.ErrMalformed)

	_, err = s.run("token", "mint", "1001", "--class", "gold")
	s.ErrorIs(err, core.ErrUnknownClass)
}

func (s *CLISuite) TestQRRoundTrip() {
	path := filepath.Join(s.dir, "credential.png")

	_, err := s.run("qr", "encode", "1001", "-o", path, "--tag", "Alice")
	s.Require().NoError(err)

	out, err := s.run("qr", "decode", path, "--json")
	s.Require().NoError(err)

	var claims claimsOutput
	s.Require().NoError(json.Unmarshal([]byte(out), &claims))
	s.Equal("1001", claims.PrincipalID)
	s.EqualValues("free", claims.Class)
}

func (s *CLISuite) TestStats() {
	out, err := s.run("stats", "--json")
	s.Require().NoError(err)

	var stats statsOutput
	s.Require().NoError(json.Unmarshal([]byte(out), &stats))
	s.Zero(stats.Registrations)
	s.Zero(stats.Redemptions)
	s.Contains(stats.ByClass, ticket.Class("free"))
}

func (s *CLISuite) TestKeysAndClientToken() {
	private := filepath.Join(s.dir, "keys", "private.pem")
	public := filepath.Join(s.dir, "keys", "public.pem")

	_, err := s.run("keys", "generate", "--private", private, "--public", public)
	s.Require().NoError(err)

	s.T().Setenv("JWT_PRIVATE_KEY_PATH", private)
	s.T().Setenv("JWT_PUBLIC_KEY_PATH", public)

	token, err := s.run("client-token", "issue", "--subject", "chat-bot", "--scope", "bot,ops")
	s.Require().NoError(err)

	cfg, err := config.LoadSigning("")
	s.Require().NoError(err)
	verifier, err := auth.LoadVerifier(cfg.JWT)
	s.Require().NoError(err)

	claims, err := verifier.VerifyClientToken(context.Background(), strings.TrimSpace(token))
	s.Require().NoError(err)
	s.Equal("chat-bot", claims.Subject)
	s.Equal([]string{"bot", "ops"}, claims.Scopes)

	_, err = s.run("client-token", "issue", "--subject", "x", "--scope", "root")
	s.ErrorIs(err, core.ErrInvalidInput)
}

func (s *CLISuite) TestSecretGenerate() {
	out, err := s.run("secret", "generate", "--bytes", "32")
	s.Require().NoError(err)
	s.Len(strings.TrimSpace(out), 43)

	_, err = s.run("secret", "generate", "--bytes", "4")
	s.ErrorIs(err, core.ErrInvalidInput)
}
