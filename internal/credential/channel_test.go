// AngelaMos | 2026
// channel_test.go

package credential

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/suite"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

const sampleToken = "1001:3b5d3c7d207e37dceeedd301e35e2e58cd2b0ab1d49a1a7c8fc81a2b0c8d6b1e"

type ChannelSuite struct {
	suite.Suite
	cfg config.CredentialConfig
}

func TestChannelSuite(t *testing.T) {
	suite.Run(t, new(ChannelSuite))
}

func (s *ChannelSuite) SetupTest() {
	s.cfg = config.CredentialConfig{
		QRSize:        512,
		FontSize:      42,
		CanvasWidth:   1080,
		CanvasHeight:  1350,
		BoxX:          290,
		BoxY:          420,
		BoxWidth:      500,
		BoxHeight:     500,
		TextBaseline:  1010,
		MaxImageBytes: 10 << 20,
	}
}

func (s *ChannelSuite) writeTemplate(w, h int) string {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 250, G: 246, B: 235, A: 255})
		}
	}

	path := filepath.Join(s.T().TempDir(), "template.png")
	f, err := os.Create(path)
	s.Require().NoError(err)
	defer f.Close()
	s.Require().NoError(png.Encode(f, img))

	return path
}

func (s *ChannelSuite) TestPlainRoundTrip() {
	ch := New(s.cfg)
	s.False(ch.Composited())

	out, err := ch.Encode(sampleToken, "")
	s.Require().NoError(err)

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	s.Require().NoError(err)
	s.Equal(s.cfg.QRSize, cfg.Width)

	token, err := ch.Decode(out)
	s.Require().NoError(err)
	s.Equal(sampleToken, token)
}

func (s *ChannelSuite) TestCompositedRoundTrip() {
	s.cfg.TemplatePath = s.writeTemplate(1600, 1600)
	ch := New(s.cfg)
	s.Require().True(ch.Composited())

	out, err := ch.Encode(sampleToken, "@guest")
	s.Require().NoError(err)

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	s.Require().NoError(err)
	s.Equal(s.cfg.CanvasWidth, cfg.Width)
	s.Equal(s.cfg.CanvasHeight, cfg.Height)

	token, err := ch.Decode(out)
	s.Require().NoError(err)
	s.Equal(sampleToken, token)
}

func (s *ChannelSuite) TestMintedTokensRoundTrip() {
	if testing.Short() {
		s.T().Skip("renders hundreds of codes")
	}

	ch := New(s.cfg)
	ids := []string{"1001", "42", "5000000001", "987654321012"}

	for i := range 200 {
		codec, err := ticket.New(map[ticket.Class][]byte{
			ticket.ClassFree: []byte(fmt.Sprintf("secret-%d", i)),
		})
		s.Require().NoError(err)

		id := ids[i%len(ids)]
		token, err := codec.Mint(id, ticket.ClassFree)
		s.Require().NoError(err)

		out, err := ch.Encode(token, "")
		s.Require().NoError(err, token)

		got, err := ch.Decode(out)
		s.Require().NoError(err, token)
		s.Equal(token, got)
	}
}

func (s *ChannelSuite) TestCompositedRoundTripAcrossSecrets() {
	s.cfg.TemplatePath = s.writeTemplate(1080, 1350)
	ch := New(s.cfg)
	s.Require().True(ch.Composited())

	for i := range 25 {
		codec, err := ticket.New(map[ticket.Class][]byte{
			ticket.ClassFree: []byte(fmt.Sprintf("secret-%d", i)),
		})
		s.Require().NoError(err)

		token, err := codec.Mint("1001", ticket.ClassFree)
		s.Require().NoError(err)

		out, err := ch.Encode(token, "@guest")
		s.Require().NoError(err, token)

		got, err := ch.Decode(out)
		s.Require().NoError(err, token)
		s.Equal(token, got)
	}
}

func (s *ChannelSuite) TestCodeStaysInsideBox() {
	s.cfg.TemplatePath = s.writeTemplate(1080, 1350)
	s.cfg.BoxWidth = 160
	s.cfg.BoxHeight = 160
	ch := New(s.cfg)

	out, err := ch.Encode(sampleToken, "")
	s.Require().NoError(err)

	img, err := png.Decode(bytes.NewReader(out))
	s.Require().NoError(err)

	box := image.Rect(s.cfg.BoxX, s.cfg.BoxY, s.cfg.BoxX+s.cfg.BoxWidth, s.cfg.BoxY+s.cfg.BoxHeight)
	want := color.RGBAModel.Convert(img.At(20, 20))
	for _, pt := range []image.Point{
		box.Min.Sub(image.Pt(1, 1)),
		image.Pt(box.Max.X, box.Min.Y),
		image.Pt(box.Min.X, box.Max.Y),
		box.Max,
	} {
		s.Equal(want, color.RGBAModel.Convert(img.At(pt.X, pt.Y)), pt)
	}
}

func (s *ChannelSuite) TestUnreadableBoxFails() {
	s.cfg.TemplatePath = s.writeTemplate(1080, 1350)
	s.cfg.BoxWidth = 24
	s.cfg.BoxHeight = 24

	_, err := New(s.cfg).Encode(sampleToken, "")
	s.Error(err)
}

func (s *ChannelSuite) TestMissingAssetsDegrade() {
	s.Run("missing template", func() {
		cfg := s.cfg
		cfg.TemplatePath = filepath.Join(s.T().TempDir(), "nope.png")
		ch := New(cfg)
		s.False(ch.Composited())

		out, err := ch.Encode(sampleToken, "@guest")
		s.Require().NoError(err)
		token, err := ch.Decode(out)
		s.Require().NoError(err)
		s.Equal(sampleToken, token)
	})

	s.Run("missing font keeps template", func() {
		cfg := s.cfg
		cfg.TemplatePath = s.writeTemplate(800, 1000)
		cfg.FontPath = filepath.Join(s.T().TempDir(), "nope.ttf")
		ch := New(cfg)
		s.True(ch.Composited())

		out, err := ch.Encode(sampleToken, "@guest")
		s.Require().NoError(err)
		token, err := ch.Decode(out)
		s.Require().NoError(err)
		s.Equal(sampleToken, token)
	})
}

func (s *ChannelSuite) TestEncodeEmptyToken() {
	_, err := New(s.cfg).Encode("", "")
	s.ErrorIs(err, core.ErrInvalidInput)
}

func (s *ChannelSuite) TestDecodeRejectsGarbage() {
	ch := New(s.cfg)

	s.Run("empty bytes", func() {
		_, err := ch.Decode(nil)
		s.ErrorIs(err, core.ErrNoCode)
	})

	s.Run("random bytes", func() {
		buf := make([]byte, 4096)
		for i := range buf {
			buf[i] = byte(rand.IntN(256))
		}
		_, err := ch.Decode(buf)
		s.ErrorIs(err, core.ErrNoCode)
	})

	s.Run("noise image", func() {
		img := image.NewGray(image.Rect(0, 0, 320, 240))
		for i := range img.Pix {
			img.Pix[i] = uint8(rand.IntN(256))
		}
		var buf bytes.Buffer
		s.Require().NoError(png.Encode(&buf, img))

		_, err := ch.Decode(buf.Bytes())
		s.ErrorIs(err, core.ErrNoCode)
	})

	s.Run("blank image", func() {
		img := image.NewGray(image.Rect(0, 0, 200, 200))
		var buf bytes.Buffer
		s.Require().NoError(png.Encode(&buf, img))

		_, err := ch.Decode(buf.Bytes())
		s.ErrorIs(err, core.ErrNoCode)
	})

	s.Run("oversized input", func() {
		cfg := s.cfg
		cfg.MaxImageBytes = 16
		_, err := New(cfg).Decode(make([]byte, 17))
		s.ErrorIs(err, core.ErrNoCode)
	})
}

func (s *ChannelSuite) TestDecodeForeignCode() {
	out, err := qrcode.Encode("https://example.com", qrcode.Medium, 256)
	s.Require().NoError(err)

	_, err = New(s.cfg).Decode(out)
	s.ErrorIs(err, core.ErrMalformed)
}

func TestCenterCrop(t *testing.T) {
	suite.Run(t, new(cropSuite))
}

type cropSuite struct {
	suite.Suite
}

func (s *cropSuite) TestPlacement() {
	box := image.Rect(100, 100, 300, 200)

	s.Equal(image.Rect(150, 100, 250, 200), placement(box, image.Pt(100, 100)))
	s.Equal(image.Rect(150, 100, 250, 200), placement(box, image.Pt(400, 400)))
	s.Equal(image.Rect(175, 125, 225, 175), placement(box, image.Pt(50, 50)))

	for _, size := range []image.Point{{10, 10}, {200, 200}, {999, 999}} {
		s.True(placement(box, size).In(box), size)
	}
}

func (s *cropSuite) TestAspect() {
	s.Equal(image.Rect(0, 100, 1000, 900), centerCrop(image.Rect(0, 0, 1000, 1000), 5, 4))
	s.Equal(image.Rect(100, 0, 900, 1000), centerCrop(image.Rect(0, 0, 1000, 1000), 4, 5))
	s.Equal(image.Rect(0, 0, 400, 500), centerCrop(image.Rect(0, 0, 400, 500), 4, 5))
}
