package export

import (
	"context"
	"errors"

	"github.com/versecast/backend/internal/session"
)

// ErrUnavailable marks a render engine that cannot run at all (browser not
// installed, launch failed). The pipeline publishes a transparent
// placeholder instead of leaving consumers with nothing; ordinary render
// errors keep the previous artifact in place.
var ErrUnavailable = errors.New("render engine unavailable")

// Engine rasterizes a session's cached state into a straight-alpha PNG.
// Implementations own one page per session, created lazily and held until
// Release; renders against the same session are never issued concurrently
// (the scheduler's per-session worker guarantees it).
type Engine interface {
	// Render applies the snapshot to the session's page and captures it.
	// The returned bytes are a PNG with a true alpha channel.
	Render(ctx context.Context, id string, snap session.Snapshot) ([]byte, error)

	// Release disposes the session's page. Idempotent.
	Release(id string)

	// Close disposes every page and the browser itself.
	Close()
}
