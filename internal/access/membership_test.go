// AngelaMos | 2026
// membership_test.go

package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
)

type TelegramSuite struct {
	suite.Suite
	server   *httptest.Server
	handler  http.HandlerFunc
	requests atomic.Int32
	provider *TelegramProvider
}

func TestTelegramSuite(t *testing.T) {
	suite.Run(t, new(TelegramSuite))
}

func (s *TelegramSuite) SetupTest() {
	s.requests.Store(0)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.handler(w, r)
	}))
	s.T().Cleanup(s.server.Close)

	s.provider = NewTelegramProvider(config.MembershipConfig{
		BotToken: "123:secret",
		Channel:  "undr_channel",
		APIBase:  s.server.URL,
		Timeout:  2 * time.Second,
	})
}

func (s *TelegramSuite) respondStatus(status string) {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/bot123:secret/getChatMember", r.URL.Path)
		s.Equal("@undr_channel", r.URL.Query().Get("chat_id"))
		s.Equal("1001", r.URL.Query().Get("user_id"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"status": status},
		})
	}
}

func (s *TelegramSuite) TestStatusMapping() {
	cases := map[string]MembershipStatus{
		"member":        Member,
		"administrator": Member,
		"creator":       Member,
		"left":          NotMember,
		"kicked":        NotMember,
		"restricted":    Unknown,
		"":              Unknown,
	}

	for status, want := range cases {
		s.Run(status, func() {
			s.respondStatus(status)
			got, err := s.provider.IsMember(context.Background(), "1001")
			s.Require().NoError(err)
			s.Equal(want, got)
		})
	}
}

func (s *TelegramSuite) TestAPIErrorIsUnavailable() {
	s.handler = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  400,
			"description": "Bad Request: chat not found",
		})
	}

	status, err := s.provider.IsMember(context.Background(), "1001")
	s.ErrorIs(err, core.ErrProviderUnavailable)
	s.Equal(Unknown, status)
	s.Equal(int32(1), s.requests.Load())
}

func (s *TelegramSuite) TestServerErrorsAreRetried() {
	s.handler = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	status, err := s.provider.IsMember(context.Background(), "1001")
	s.ErrorIs(err, core.ErrProviderUnavailable)
	s.Equal(Unknown, status)
	s.Equal(int32(3), s.requests.Load())
}

func (s *TelegramSuite) TestRecoversAfterTransientFailure() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		if s.requests.Load() == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"status": "member"},
		})
	}

	status, err := s.provider.IsMember(context.Background(), "1001")
	s.Require().NoError(err)
	s.Equal(Member, status)
}

func (s *TelegramSuite) TestTimeout() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	status, err := s.provider.IsMember(ctx, "1001")
	s.ErrorIs(err, core.ErrProviderUnavailable)
	s.Equal(Unknown, status)
}

func (s *TelegramSuite) TestErrorsDoNotLeakToken() {
	provider := NewTelegramProvider(config.MembershipConfig{
		BotToken: "123:secret",
		Channel:  "-100200300",
		APIBase:  "http://127.0.0.1:1",
		Timeout:  200 * time.Millisecond,
	})
	s.Equal("-100200300", provider.channel)

	_, err := provider.IsMember(context.Background(), "1001")
	s.Require().Error(err)
	s.NotContains(err.Error(), "secret")
}

func TestStaticProvider(t *testing.T) {
	suite.Run(t, new(staticSuite))
}

type staticSuite struct {
	suite.Suite
}

func (s *staticSuite) TestMembers() {
	p := NewStaticProvider("1001", "1002")

	status, err := p.IsMember(context.Background(), "1001")
	s.Require().NoError(err)
	s.Equal(Member, status)

	status, err = p.IsMember(context.Background(), "9999")
	s.Require().NoError(err)
	s.Equal(NotMember, status)
}

func (s *staticSuite) TestFactory() {
	p, err := NewMembershipProvider(config.MembershipConfig{
		Provider: config.MembershipStatic,
		Members:  []string{"1"},
	})
	s.Require().NoError(err)
	s.IsType(&StaticProvider{}, p)

	_, err = NewMembershipProvider(config.MembershipConfig{Provider: "carrier-pigeon"})
	s.ErrorIs(err, core.ErrInvalidInput)
}
