package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/versecast/backend/internal/config"
)

// Publisher writes the per-session PNG artifacts: the straight-alpha
// variant, the premultiplied variant, and a default file matching the
// configured mode. Every write is temp-file-then-rename so an HTTP read in
// flight never sees a partial image.
type Publisher struct {
	dir         string
	defaultMode config.AlphaMode
	webhook     *Webhook
	exportURL   func(sessionID string) string
}

func NewPublisher(dir string, defaultMode config.AlphaMode, webhook *Webhook, exportURL func(string) string) *Publisher {
	return &Publisher{
		dir:         dir,
		defaultMode: defaultMode,
		webhook:     webhook,
		exportURL:   exportURL,
	}
}

// Path returns where the variant for a session lives on disk.
func (p *Publisher) Path(sessionID string, mode config.AlphaMode) string {
	name := SafeName(sessionID)
	switch mode {
	case config.AlphaStraight:
		return filepath.Join(p.dir, name+".straight.png")
	case config.AlphaPremultiplied:
		return filepath.Join(p.dir, name+".premultiplied.png")
	default:
		return filepath.Join(p.dir, name+".png")
	}
}

// defaultPath is the artifact consumers get when they don't name a variant.
func (p *Publisher) defaultPath(sessionID string) string {
	return filepath.Join(p.dir, SafeName(sessionID)+".png")
}

// Publish encodes and writes all three artifacts, then fires the webhook.
// A filesystem error aborts the remaining writes but leaves whatever prior
// artifacts exist intact.
func (p *Publisher) Publish(ctx context.Context, sessionID string, straight, premultiplied image.Image) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}

	straightPNG, err := encodePNG(straight)
	if err != nil {
		return fmt.Errorf("encoding straight variant: %w", err)
	}
	premultPNG, err := encodePNG(premultiplied)
	if err != nil {
		return fmt.Errorf("encoding premultiplied variant: %w", err)
	}

	return p.publishEncoded(ctx, sessionID, straightPNG, premultPNG)
}

// PublishPlaceholder writes the transparent fallback to all three artifacts.
// Used when the render engine is unavailable; the webhook still fires so
// downstream consumers pick up the (blank) frame.
func (p *Publisher) PublishPlaceholder(ctx context.Context, sessionID string, width, height int) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	blank := TransparentPNG(width, height)
	return p.publishEncoded(ctx, sessionID, blank, blank)
}

func (p *Publisher) publishEncoded(ctx context.Context, sessionID string, straightPNG, premultPNG []byte) error {
	if err := writeAtomic(p.Path(sessionID, config.AlphaStraight), straightPNG); err != nil {
		return err
	}
	if err := writeAtomic(p.Path(sessionID, config.AlphaPremultiplied), premultPNG); err != nil {
		return err
	}

	defaultPNG := premultPNG
	if p.defaultMode == config.AlphaStraight {
		defaultPNG = straightPNG
	}
	if err := writeAtomic(p.defaultPath(sessionID), defaultPNG); err != nil {
		return err
	}

	if p.webhook != nil {
		url := ""
		if p.exportURL != nil {
			url = p.exportURL(sessionID)
		}
		p.webhook.Notify(ctx, sessionID, url)
	}
	return nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeAtomic lands data at path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	committed = true
	return nil
}

// SafeName maps an operator-chosen session id onto a filesystem-safe file
// stem. Ids are opaque caller input and must never traverse out of the
// export directory.
func SafeName(sessionID string) string {
	var b strings.Builder
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		name = "default"
	}
	return name
}
