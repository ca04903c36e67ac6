package session

import "encoding/json"

// State actions understood by the cache. Anything else passes through the
// relay uninterpreted.
const (
	ActionSettings    = "settings"
	ActionShow        = "show"
	ActionClear       = "clear"
	ActionShowTicker  = "show-ticker"
	ActionClearTicker = "clear-ticker"
	ActionVisibility  = "visibility"
)

// Snapshot is the last-known visual state of a session. Payloads are opaque
// renderer documents; the cache never looks inside them beyond keeping the
// settings object embedded in a show.
//
// A clear flips OverlayVisible but keeps Overlay, so a renderer that
// reconnects mid-show can be handed the last on-air content. The visibility
// flag, not payload presence, decides whether anything is drawn.
type Snapshot struct {
	Settings       json.RawMessage
	Overlay        json.RawMessage
	OverlayVisible bool
	Ticker         json.RawMessage
	TickerVisible  bool

	// ShowSettings is the settings document embedded in the last show, if
	// any. Export renders prefer it over Settings so a capture is styled
	// exactly as the show was when it went on air.
	ShowSettings json.RawMessage

	// Raw wire frames, kept for byte-identical replay to late joiners.
	RawSettings []byte
	RawShow     []byte
	RawTicker   []byte
}

// EffectiveSettings returns the styling document an export render should
// apply: the one that traveled with the show when present, else the cached
// standalone settings.
func (s *Snapshot) EffectiveSettings() json.RawMessage {
	if len(s.ShowSettings) > 0 {
		return s.ShowSettings
	}
	return s.Settings
}

// visibilityFrame is the explicit replay companion for the visibility flags,
// so late joiners never have to infer on-air state from payload presence.
type visibilityFrame struct {
	Action  string `json:"action"`
	Overlay bool   `json:"overlay"`
	Ticker  bool   `json:"ticker"`
}

// VisibilityFrame encodes the snapshot's visibility flags as a wire frame.
func (s *Snapshot) VisibilityFrame() []byte {
	data, _ := json.Marshal(visibilityFrame{
		Action:  ActionVisibility,
		Overlay: s.OverlayVisible,
		Ticker:  s.TickerVisible,
	})
	return data
}

// apply mutates exactly the field the action names. Unknown actions are a
// no-op; the relay still forwards them.
func (s *Snapshot) apply(action string, data, settings json.RawMessage, raw []byte) {
	switch action {
	case ActionSettings:
		s.Settings = settings
		s.RawSettings = raw
	case ActionShow:
		s.Overlay = data
		s.ShowSettings = settings
		s.OverlayVisible = true
		s.RawShow = raw
	case ActionClear:
		s.OverlayVisible = false
	case ActionShowTicker:
		s.Ticker = data
		s.TickerVisible = true
		s.RawTicker = raw
	case ActionClearTicker:
		s.TickerVisible = false
	}
}
