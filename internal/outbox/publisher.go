// AngelaMos | 2026
// publisher.go

package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
)

const publishTimeout = 5 * time.Second

type Publisher interface {
	Publish(ctx context.Context, deliveries ...Delivery) error
}

func NewPublisher(cfg config.OutboxConfig, redis *core.Redis) Publisher {
	if !cfg.Enabled || redis == nil {
		return NopPublisher{}
	}
	return &StreamPublisher{redis: redis, stream: cfg.Stream, maxLen: cfg.MaxLen}
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Delivery) error { return nil }

// StreamPublisher mirrors deliveries into a capped Redis stream for an
// asynchronous bot worker.
type StreamPublisher struct {
	redis  *core.Redis
	stream string
	maxLen int64
}

func (p *StreamPublisher) Publish(ctx context.Context, deliveries ...Delivery) error {
	for _, d := range deliveries {
		params, err := json.Marshal(d.Params)
		if err != nil {
			return fmt.Errorf("marshal delivery params: %w", err)
		}

		values := map[string]any{
			"chat_id":  d.ChatID,
			"kind":     string(d.Kind),
			"text_key": d.TextKey,
			"params":   string(params),
		}
		if len(d.ImagePNG) > 0 {
			values["image_png"] = d.ImagePNG
		}

		if _, err := p.redis.Append(ctx, p.stream, p.maxLen, values); err != nil {
			return err
		}
	}

	return nil
}

// PublishAsync hands deliveries to p without blocking the caller. Failures
// are logged; ledger and registration state never depend on them.
func PublishAsync(p Publisher, deliveries ...Delivery) {
	if len(deliveries) == 0 {
		return
	}
	if _, ok := p.(NopPublisher); ok {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := p.Publish(ctx, deliveries...); err != nil {
			slog.Warn("outbox publish failed",
				"deliveries", len(deliveries),
				"error", err,
			)
		}
	}()
}
