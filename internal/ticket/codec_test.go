// AngelaMos | 2026
// codec_test.go

package ticket

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
)

type CodecSuite struct {
	suite.Suite
	codec *Codec
}

func TestCodecSuite(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func (s *CodecSuite) SetupTest() {
	codec, err := New(map[Class][]byte{
		ClassFree: []byte("free-secret"),
		"vip":     []byte("vip-secret"),
	})
	s.Require().NoError(err)
	s.codec = codec
}

func (s *CodecSuite) TestRoundTrip() {
	for _, class := range s.codec.Classes() {
		s.Run(string(class), func() {
			token, err := s.codec.Mint("1001", class)
			s.Require().NoError(err)
			s.True(strings.HasPrefix(token, "1001:"))

			claims, err := s.codec.Verify(token)
			s.Require().NoError(err)
			s.Equal("1001", claims.PrincipalID)
			s.Equal(class, claims.Class)
		})
	}
}

func (s *CodecSuite) TestMintIsDeterministic() {
	a, err := s.codec.Mint("42", ClassFree)
	s.Require().NoError(err)
	b, err := s.codec.Mint("42", ClassFree)
	s.Require().NoError(err)
	s.Equal(a, b)

	vip, err := s.codec.Mint("42", "vip")
	s.Require().NoError(err)
	s.NotEqual(a, vip)
}

func (s *CodecSuite) TestMintRejects() {
	s.Run("unknown class", func() {
		_, err := s.codec.Mint("1001", "gold")
		s.ErrorIs(err, core.ErrUnknownClass)
	})

	s.Run("empty principal", func() {
		_, err := s.codec.Mint("", ClassFree)
		s.ErrorIs(err, core.ErrMalformed)
	})

	s.Run("principal containing separator", func() {
		_, err := s.codec.Mint("10:01", ClassFree)
		s.ErrorIs(err, core.ErrMalformed)
	})
}

func (s *CodecSuite) TestVerifyUnknownDigest() {
	_, err := s.codec.Verify("1001:" + strings.Repeat("ab", 32))
	s.ErrorIs(err, core.ErrUnknownClass)
}

func (s *CodecSuite) TestVerifyMalformed() {
	token, err := s.codec.Mint("1001", ClassFree)
	s.Require().NoError(err)
	mac := token[len("1001:"):]

	cases := []string{
		"", "1001", "1001:", ":abcdef", ":", ":" + mac,
		"1001:deadbeef",
		"1001:" + strings.ToUpper(mac),
		"1001:" + mac[:MacLen-2] + "zz",
		"https://example.com",
	}
	for _, raw := range cases {
		_, err := s.codec.Verify(raw)
		s.ErrorIs(err, core.ErrMalformed, "input %q", raw)
	}
}

func (s *CodecSuite) TestVerifySplitsOnFirstSeparator() {
	token, err := s.codec.Mint("1001", ClassFree)
	s.Require().NoError(err)

	_, err = s.codec.Verify(token + ":extra")
	s.ErrorIs(err, core.ErrMalformed)
}

// The mac is per class, so a forwarded token verifies for another id.
func (s *CodecSuite) TestMacNotBoundToPrincipal() {
	token, err := s.codec.Mint("1001", ClassFree)
	s.Require().NoError(err)

	_, mac, ok := Split(token)
	s.Require().True(ok)

	claims, err := s.codec.Verify("2002:" + mac)
	s.Require().NoError(err)
	s.Equal("2002", claims.PrincipalID)
	s.Equal(ClassFree, claims.Class)
}

func (s *CodecSuite) TestHas() {
	s.True(s.codec.Has(ClassFree))
	s.True(s.codec.Has("vip"))
	s.False(s.codec.Has("gold"))
	s.Equal([]Class{ClassFree, "vip"}, s.codec.Classes())
}

func (s *CodecSuite) TestNewRejectsSharedSecret() {
	_, err := New(map[Class][]byte{
		ClassFree: []byte("same"),
		"vip":     []byte("same"),
	})
	s.ErrorIs(err, core.ErrInvalidInput)
}

func (s *CodecSuite) TestNewRejectsEmpty() {
	_, err := New(nil)
	s.ErrorIs(err, core.ErrInvalidInput)

	_, err = New(map[Class][]byte{ClassFree: nil})
	s.ErrorIs(err, core.ErrInvalidInput)
}

func (s *CodecSuite) TestFromConfig() {
	s.Run("derives missing secrets", func() {
		codec, err := FromConfig(config.TicketsConfig{
			MasterSecret: "master",
			IssueClass:   "free",
			Classes: []config.TicketClassConfig{
				{Name: "free"},
				{Name: "vip"},
				{Name: "staff", Secret: "explicit"},
			},
		})
		s.Require().NoError(err)
		s.Len(codec.Classes(), 3)

		again, err := FromConfig(config.TicketsConfig{
			MasterSecret: "master",
			Classes:      []config.TicketClassConfig{{Name: "free"}},
		})
		s.Require().NoError(err)

		a, err := codec.Mint("7", ClassFree)
		s.Require().NoError(err)
		b, err := again.Mint("7", ClassFree)
		s.Require().NoError(err)
		s.Equal(a, b)
	})

	s.Run("different master secrets disagree", func() {
		one, err := FromConfig(config.TicketsConfig{
			MasterSecret: "one",
			Classes:      []config.TicketClassConfig{{Name: "free"}},
		})
		s.Require().NoError(err)
		two, err := FromConfig(config.TicketsConfig{
			MasterSecret: "two",
			Classes:      []config.TicketClassConfig{{Name: "free"}},
		})
		s.Require().NoError(err)

		token, err := one.Mint("7", ClassFree)
		s.Require().NoError(err)
		_, err = two.Verify(token)
		s.ErrorIs(err, core.ErrUnknownClass)
	})

	s.Run("missing master secret", func() {
		_, err := FromConfig(config.TicketsConfig{
			Classes: []config.TicketClassConfig{{Name: "free"}},
		})
		s.ErrorIs(err, core.ErrInvalidInput)
	})
}

func TestSplit(t *testing.T) {
	want := strings.Repeat("0f", 32)

	id, mac, ok := Split("1001:" + want)
	require.True(t, ok)
	assert.Equal(t, "1001", id)
	assert.Equal(t, want, mac)

	for _, raw := range []string{
		"no-separator",
		"1001:abc:def",
		"1001:" + want + ":extra",
		"https://example.com",
		"1001:" + strings.Repeat("0F", 32),
	} {
		_, _, ok = Split(raw)
		assert.False(t, ok, raw)
	}
}
