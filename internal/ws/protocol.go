package ws

import (
	"encoding/json"

	"github.com/versecast/backend/internal/session"
)

type Action string

const (
	ActionSettings    Action = "settings"
	ActionShow        Action = "show"
	ActionClear       Action = "clear"
	ActionShowTicker  Action = "show-ticker"
	ActionClearTicker Action = "clear-ticker"

	ActionExportConfig  Action = "atem-export-config"
	ActionExportStatus  Action = "atem-export-status"
	ActionExportRefresh Action = "atem-export-refresh"
	ActionExportAck     Action = "atem-export-config-ack"
)

// Message is one decoded wire frame. Decoding happens exactly once, at the
// boundary; everything downstream switches on Action. Frames that don't
// parse, or carry an action nobody knows, keep Action empty and still relay
// verbatim to room peers.
type Message struct {
	Raw      []byte
	Action   Action
	Data     json.RawMessage
	Settings json.RawMessage

	// Export-control fields.
	SessionID         string
	PinCurrentSession bool
}

// Decode parses a raw frame into a Message. It never fails; unparseable
// input becomes an unrecognized message.
func Decode(raw []byte) Message {
	msg := Message{Raw: raw}

	var frame struct {
		Action            string          `json:"action"`
		Data              json.RawMessage `json:"data"`
		Settings          json.RawMessage `json:"settings"`
		SessionID         string          `json:"sessionId"`
		PinCurrentSession bool            `json:"pinCurrentSession"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return msg
	}

	switch Action(frame.Action) {
	case ActionSettings, ActionShow, ActionClear, ActionShowTicker, ActionClearTicker,
		ActionExportConfig, ActionExportStatus, ActionExportRefresh:
		msg.Action = Action(frame.Action)
	default:
		return msg
	}

	msg.Data = frame.Data
	msg.Settings = frame.Settings
	msg.SessionID = frame.SessionID
	msg.PinCurrentSession = frame.PinCurrentSession
	return msg
}

// Unrecognized reports whether the frame carries no known action.
func (m *Message) Unrecognized() bool { return m.Action == "" }

// IsState reports whether the action mutates the session's cached state.
func (m *Message) IsState() bool {
	switch m.Action {
	case ActionSettings, ActionShow, ActionClear, ActionShowTicker, ActionClearTicker:
		return true
	}
	return false
}

// StatePayloads returns the settings document the cache should store for
// this action. Settings travel in the settings field for both the
// standalone settings action and embedded inside a show.
func (m *Message) StatePayloads() (data, settings json.RawMessage) {
	return m.Data, m.Settings
}

// ExportAck is the reply to export-config and export-status requests.
type ExportAck struct {
	Action            Action   `json:"action"`
	SessionID         string   `json:"sessionId"`
	PinCurrentSession bool     `json:"pinCurrentSession"`
	PinnedSessions    []string `json:"pinnedSessions"`
	ExportURL         string   `json:"exportUrl"`
}

func (a ExportAck) encode() []byte {
	data, _ := json.Marshal(a)
	return data
}

// stateAction maps a wire action onto the session package's action name.
func stateAction(a Action) string {
	switch a {
	case ActionSettings:
		return session.ActionSettings
	case ActionShow:
		return session.ActionShow
	case ActionClear:
		return session.ActionClear
	case ActionShowTicker:
		return session.ActionShowTicker
	case ActionClearTicker:
		return session.ActionClearTicker
	}
	return ""
}
