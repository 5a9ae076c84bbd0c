// AngelaMos | 2026
// membership.go

package access

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
)

type MembershipStatus string

const (
	Member    MembershipStatus = "member"
	NotMember MembershipStatus = "not_member"
	Unknown   MembershipStatus = "unknown"
)

type MembershipProvider interface {
	IsMember(ctx context.Context, principalID string) (MembershipStatus, error)
}

func NewMembershipProvider(cfg config.MembershipConfig) (MembershipProvider, error) {
	switch cfg.Provider {
	case config.MembershipTelegram:
		return NewTelegramProvider(cfg), nil
	case config.MembershipStatic:
		return NewStaticProvider(cfg.Members...), nil
	default:
		return nil, fmt.Errorf(
			"membership provider %q: %w",
			cfg.Provider,
			core.ErrInvalidInput,
		)
	}
}

// TelegramProvider asks the Bot API whether a user belongs to the channel.
type TelegramProvider struct {
	client  *http.Client
	base    string
	token   string
	channel string
}

func NewTelegramProvider(cfg config.MembershipConfig) *TelegramProvider {
	channel := cfg.Channel
	if !strings.HasPrefix(channel, "@") && !strings.HasPrefix(channel, "-") {
		channel = "@" + channel
	}

	return &TelegramProvider{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		base:    strings.TrimRight(cfg.APIBase, "/"),
		token:   cfg.BotToken,
		channel: channel,
	}
}

type chatMemberResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Result      struct {
		Status string `json:"status"`
	} `json:"result"`
}

func (p *TelegramProvider) IsMember(
	ctx context.Context,
	principalID string,
) (MembershipStatus, error) {
	var body chatMemberResponse

	backoff := retry.WithMaxRetries(2, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		body, err = p.getChatMember(ctx, principalID)
		return err
	})
	if err != nil {
		return Unknown, fmt.Errorf("get chat member: %w: %w", core.ErrProviderUnavailable, err)
	}

	if !body.OK {
		return Unknown, fmt.Errorf(
			"get chat member: %d %s: %w",
			body.ErrorCode,
			body.Description,
			core.ErrProviderUnavailable,
		)
	}

	return statusOf(body.Result.Status), nil
}

// getChatMember marks transport failures and 5xx/429 answers retryable.
func (p *TelegramProvider) getChatMember(
	ctx context.Context,
	principalID string,
) (chatMemberResponse, error) {
	q := url.Values{}
	q.Set("chat_id", p.channel)
	q.Set("user_id", principalID)
	endpoint := p.base + "/bot" + p.token + "/getChatMember?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return chatMemberResponse{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return chatMemberResponse{}, retry.RetryableError(redact(err, p.token))
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode >= http.StatusInternalServerError ||
		resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain
		return chatMemberResponse{}, retry.RetryableError(
			fmt.Errorf("telegram status %d", resp.StatusCode),
		)
	}

	var body chatMemberResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return chatMemberResponse{}, fmt.Errorf("decode telegram response: %w", err)
	}

	return body, nil
}

func statusOf(status string) MembershipStatus {
	switch status {
	case "member", "administrator", "creator":
		return Member
	case "left", "kicked":
		return NotMember
	default:
		return Unknown
	}
}

// redact keeps the bot token out of logged URL errors.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

// StaticProvider answers from a fixed allow list.
type StaticProvider struct {
	members map[string]struct{}
}

func NewStaticProvider(members ...string) *StaticProvider {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return &StaticProvider{members: set}
}

func (p *StaticProvider) IsMember(
	_ context.Context,
	principalID string,
) (MembershipStatus, error) {
	if _, ok := p.members[principalID]; ok {
		return Member, nil
	}
	return NotMember, nil
}
