// AngelaMos | 2026
// publisher_test.go

package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
)

func TestNewPublisher(t *testing.T) {
	enabled := config.OutboxConfig{Enabled: true, Stream: "s", MaxLen: 10}

	assert.IsType(t, NopPublisher{}, NewPublisher(enabled, nil))
	assert.IsType(t, NopPublisher{}, NewPublisher(config.OutboxConfig{}, &core.Redis{}))
	assert.IsType(t, &StreamPublisher{}, NewPublisher(enabled, &core.Redis{}))
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), Text("1", KeyContactSaved, nil)))
	PublishAsync(NopPublisher{}, Text("1", KeyContactSaved, nil))
	PublishAsync(NopPublisher{})
}

func TestDeliveryBuilders(t *testing.T) {
	d := Photo("1001", KeyCredentialIssued, []byte("png"), map[string]string{"class": "vip"})
	assert.Equal(t, KindPhoto, d.Kind)
	assert.Equal(t, []byte("png"), d.ImagePNG)

	d = Text("1001", KeySubscribePrompt, nil)
	assert.Equal(t, KindText, d.Kind)
	assert.Empty(t, d.ImagePNG)
}
