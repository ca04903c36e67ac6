package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"
)

var (
	placeholderMu    sync.Mutex
	placeholderCache = make(map[string][]byte)
)

// TransparentPNG returns a fully transparent PNG of the given dimensions.
// Served when no export exists yet, and published when the render engine is
// missing, so downstream consumers always get a well-formed frame. Encoded
// once per size.
func TransparentPNG(width, height int) []byte {
	key := fmt.Sprintf("%dx%d", width, height)

	placeholderMu.Lock()
	defer placeholderMu.Unlock()
	if data, ok := placeholderCache[key]; ok {
		return data
	}

	var buf bytes.Buffer
	// A zero-value NRGBA is already fully transparent.
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, width, height))); err != nil {
		// Encoding an in-memory image only fails on a writer error, which
		// bytes.Buffer never produces.
		panic(err)
	}
	placeholderCache[key] = buf.Bytes()
	return buf.Bytes()
}
