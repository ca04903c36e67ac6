package demo

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"time"

	"github.com/versecast/backend/internal/export"
	"github.com/versecast/backend/internal/session"
)

// Generator feeds scripted overlay traffic into a set of sessions so the
// render page and the export pipeline can be exercised without a real
// control client connected.
type Generator struct {
	manager  *session.Manager
	exporter *export.Exporter
	rooms    []*demoRoom
}

type demoRoom struct {
	id       string
	style    string
	verses   []demoVerse
	tickers  []string
	verseIdx int
	tickIdx  int
	// hold is how many ticks a verse stays up before it is cleared,
	// gap how many ticks the overlay stays empty between verses.
	hold int
	gap  int
}

type demoVerse struct {
	line1 string
	line2 string
}

var demoVerses = []demoVerse{
	{"The Lord is my shepherd; I shall not want.", "Psalm 23:1"},
	{"In the beginning was the Word, and the Word was with God.", "John 1:1"},
	{"For where two or three gather in my name, there am I with them.", "Matthew 18:20"},
	{"Let all that you do be done in love.", "1 Corinthians 16:14"},
	{"This is the day that the Lord has made; let us rejoice.", "Psalm 118:24"},
	{"Be strong and courageous. Do not be afraid.", "Joshua 1:9"},
}

var demoTickers = []string{
	"Welcome! Coffee and fellowship in the hall after the service.",
	"Youth group meets Wednesday at 7pm.",
	"Next week: guest speaker, doors open 9:30.",
	"Volunteers needed for the food drive, see the front desk.",
}

func NewGenerator(manager *session.Manager, exporter *export.Exporter) *Generator {
	return &Generator{
		manager:  manager,
		exporter: exporter,
		rooms: []*demoRoom{
			{id: "demo-main", style: "classic", verses: demoVerses, tickers: demoTickers, hold: 10, gap: 3},
			{id: "demo-overflow", style: "modern", verses: demoVerses[2:], tickers: demoTickers[:2], hold: 7, gap: 5},
		},
	}
}

// residentClient keeps a demo session alive without consuming traffic.
// Sessions are torn down when their last member leaves, so each demo room
// holds one of these open for the life of the generator.
type residentClient struct{ room string }

func (residentClient) Role() session.Role       { return session.Control }
func (residentClient) Send(payload []byte) bool { return true }

func (g *Generator) Start(ctx context.Context) {
	for _, r := range g.rooms {
		g.manager.Join(r.id, residentClient{room: r.id})
		g.apply(r.id, session.ActionSettings, nil, mustJSON(map[string]any{
			"style":    r.style,
			"fontSize": "large",
		}))
	}
	log.Printf("demo generator running for %d sessions", len(g.rooms))
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			for _, r := range g.rooms {
				g.advance(r, tick)
			}
		}
	}
}

func (g *Generator) advance(r *demoRoom, tick int) {
	phase := tick % (r.hold + r.gap)

	switch {
	case phase == 0:
		v := r.verses[r.verseIdx%len(r.verses)]
		r.verseIdx++
		g.apply(r.id, session.ActionShow, mustJSON(map[string]any{
			"line1": v.line1,
			"line2": v.line2,
		}), nil)
	case phase == r.hold:
		g.apply(r.id, session.ActionClear, nil, nil)
	}

	// Rotate the ticker on its own slower cadence, with the odd gap
	// where nothing scrolls at all.
	if tick%9 == 0 {
		if rand.Intn(5) == 0 {
			g.apply(r.id, session.ActionClearTicker, nil, nil)
			return
		}
		t := r.tickers[r.tickIdx%len(r.tickers)]
		r.tickIdx++
		g.apply(r.id, session.ActionShowTicker, mustJSON(map[string]any{
			"text": t,
		}), nil)
	}
}

// apply routes a frame through the same state-cache-then-broadcast path a
// control client would take, so demo traffic reaches outputs, the replay
// cache and the exporter alike.
func (g *Generator) apply(id, action string, data, settings []byte) {
	frame := map[string]any{"action": action}
	if data != nil {
		frame["data"] = json.RawMessage(data)
	}
	if settings != nil {
		frame["settings"] = json.RawMessage(settings)
	}
	raw := mustJSON(frame)

	if _, ok := g.manager.Apply(id, action, data, settings, raw); !ok {
		return
	}
	g.manager.Broadcast(id, raw, nil)
	if g.exporter != nil {
		g.exporter.Trigger(id)
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
