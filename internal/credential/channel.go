// AngelaMos | 2026
// channel.go

package credential

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

const (
	maxPixels = 40_000_000

	// Below this the box is too small for a token sized code to stay
	// readable after scaling.
	minBoxSide = 120
)

// Channel turns tokens into QR images and photographed QR images back
// into raw tokens.
type Channel struct {
	cfg      config.CredentialConfig
	template image.Image
	face     font.Face
}

// New prepares the channel. Template and font problems are logged and the
// channel falls back to plain QR output.
func New(cfg config.CredentialConfig) *Channel {
	c := &Channel{cfg: cfg, face: basicfont.Face7x13}

	if cfg.TemplatePath != "" {
		tpl, err := loadTemplate(cfg)
		if err != nil {
			slog.Warn("credential template unavailable, using plain QR",
				"path", cfg.TemplatePath,
				"error", err,
			)
		} else {
			c.template = tpl
		}
	}

	if c.template != nil && min(cfg.BoxWidth, cfg.BoxHeight) < minBoxSide {
		slog.Warn("credential box is small, codes will be scaled down",
			"width", cfg.BoxWidth,
			"height", cfg.BoxHeight,
		)
	}

	if c.template != nil && cfg.FontPath != "" {
		face, err := loadFace(cfg.FontPath, cfg.FontSize)
		if err != nil {
			slog.Warn("credential font unavailable, using builtin face",
				"path", cfg.FontPath,
				"error", err,
			)
		} else {
			c.face = face
		}
	}

	return c
}

func (c *Channel) Composited() bool {
	return c.template != nil
}

// Encode renders token as a PNG. With a template the QR is placed in the
// configured box and displayTag is written under it. Every rendering is
// read back before it is returned; renderers are tried in order until one
// decodes to token.
func (c *Channel) Encode(token, displayTag string) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("encode credential: empty token: %w", core.ErrInvalidInput)
	}

	side := c.cfg.QRSize
	if c.template != nil {
		side = min(c.cfg.BoxWidth, c.cfg.BoxHeight)
	}

	var lastErr error
	for _, r := range renderers {
		code, err := r.render(token, side)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", r.name, err)
			continue
		}

		img := code
		if c.template != nil {
			img = c.composite(code, displayTag)
		}

		if text, err := detect(img); err != nil || text != token {
			slog.Debug("qr rendering did not read back", "renderer", r.name, "error", err)
			lastErr = fmt.Errorf("%s: read back failed", r.name)
			continue
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode credential png: %w", err)
		}
		return buf.Bytes(), nil
	}

	return nil, fmt.Errorf("encode credential: %w", lastErr)
}

type renderer struct {
	name   string
	render func(token string, side int) (image.Image, error)
}

var renderers = []renderer{
	{name: "zxing-m", render: zxingRender(decoder.ErrorCorrectionLevel_M)},
	{name: "zxing-q", render: zxingRender(decoder.ErrorCorrectionLevel_Q)},
	{name: "qrcode-medium", render: qrcodeRender(qrcode.Medium)},
	{name: "qrcode-high", render: qrcodeRender(qrcode.High)},
}

func zxingRender(level decoder.ErrorCorrectionLevel) func(string, int) (image.Image, error) {
	return func(token string, side int) (image.Image, error) {
		hints := map[gozxing.EncodeHintType]any{
			gozxing.EncodeHintType_ERROR_CORRECTION: level,
		}

		bits, err := zxqr.NewQRCodeWriter().Encode(token, gozxing.BarcodeFormat_QR_CODE, side, side, hints)
		if err != nil {
			return nil, err
		}

		w, h := bits.GetWidth(), bits.GetHeight()
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := range h {
			for x := range w {
				if !bits.Get(x, y) {
					img.Pix[y*img.Stride+x] = 0xff
				}
			}
		}
		return img, nil
	}
}

func qrcodeRender(level qrcode.RecoveryLevel) func(string, int) (image.Image, error) {
	return func(token string, side int) (image.Image, error) {
		qr, err := qrcode.New(token, level)
		if err != nil {
			return nil, err
		}
		return qr.Image(side), nil
	}
}

func (c *Channel) composite(code image.Image, displayTag string) *image.RGBA {
	canvas := image.NewRGBA(c.template.Bounds())
	draw.Draw(canvas, canvas.Bounds(), c.template, image.Point{}, draw.Src)

	box := image.Rect(c.cfg.BoxX, c.cfg.BoxY, c.cfg.BoxX+c.cfg.BoxWidth, c.cfg.BoxY+c.cfg.BoxHeight)
	dst := placement(box, code.Bounds().Size())

	if dst.Size() == code.Bounds().Size() {
		draw.Draw(canvas, dst, code, code.Bounds().Min, draw.Src)
	} else {
		draw.NearestNeighbor.Scale(canvas, dst, code, code.Bounds(), draw.Src, nil)
	}

	if displayTag != "" {
		c.drawTag(canvas, displayTag)
	}

	return canvas
}

// placement centers a code of the given size in box, shrinking it to the
// box's shorter side when it does not fit.
func placement(box image.Rectangle, size image.Point) image.Rectangle {
	side := min(box.Dx(), box.Dy())
	w, h := min(size.X, side), min(size.Y, side)

	x0 := box.Min.X + (box.Dx()-w)/2
	y0 := box.Min.Y + (box.Dy()-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func (c *Channel) drawTag(canvas *image.RGBA, tag string) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: c.face,
	}

	width := d.MeasureString(tag).Round()
	x := (canvas.Bounds().Dx() - width) / 2
	d.Dot = fixed.P(max(x, 0), c.cfg.TextBaseline)
	d.DrawString(tag)
}

// Decode finds a QR code in a photo and returns its payload. ErrNoCode
// means the caller should retake the photo; ErrMalformed means a code was
// read but it is not a credential.
func (c *Channel) Decode(data []byte) (token string, err error) {
	if len(data) == 0 {
		return "", fmt.Errorf("decode credential: empty image: %w", core.ErrNoCode)
	}
	if c.cfg.MaxImageBytes > 0 && int64(len(data)) > c.cfg.MaxImageBytes {
		return "", fmt.Errorf("decode credential: image too large: %w", core.ErrNoCode)
	}

	imgCfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode credential: %v: %w", err, core.ErrNoCode)
	}
	if imgCfg.Width*imgCfg.Height > maxPixels {
		return "", fmt.Errorf("decode credential: image dimensions too large: %w", core.ErrNoCode)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode credential: %v: %w", err, core.ErrNoCode)
	}

	text, err := detect(img)
	if err != nil {
		return "", err
	}

	if _, _, ok := ticket.Split(text); !ok {
		return "", fmt.Errorf("decode credential: %w", core.ErrMalformed)
	}

	return text, nil
}

func detect(img image.Image) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("qr detector panicked", "panic", p)
			text, err = "", fmt.Errorf("decode credential: detector failure: %w", core.ErrNoCode)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("decode credential: %v: %w", err, core.ErrNoCode)
	}

	hints := map[gozxing.DecodeHintType]any{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	result, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("decode credential: %v: %w", err, core.ErrNoCode)
	}

	return result.GetText(), nil
}

func loadTemplate(cfg config.CredentialConfig) (image.Image, error) {
	if cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0 {
		return nil, errors.New("canvas size must be positive")
	}

	f, err := os.Open(cfg.TemplatePath)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}

	crop := centerCrop(src.Bounds(), cfg.CanvasWidth, cfg.CanvasHeight)
	dst := image.NewRGBA(image.Rect(0, 0, cfg.CanvasWidth, cfg.CanvasHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)

	return dst, nil
}

// centerCrop returns the largest rectangle of b, centered, with the
// aspect ratio w:h.
func centerCrop(b image.Rectangle, w, h int) image.Rectangle {
	bw, bh := b.Dx(), b.Dy()

	cw, ch := bw, bw*h/w
	if ch > bh {
		cw, ch = bh*w/h, bh
	}

	x0 := b.Min.X + (bw-cw)/2
	y0 := b.Min.Y + (bh-ch)/2
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

func loadFace(path string, size int) (font.Face, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	parsed, err := opentype.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}

	if size <= 0 {
		size = 42
	}

	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}

	return face, nil
}
