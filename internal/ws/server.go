package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/versecast/backend/internal/config"
	"github.com/versecast/backend/internal/export"
	"github.com/versecast/backend/internal/session"
)

// Server is the relay's network surface: the WebSocket endpoint that rooms
// hang off, the live PNG endpoints the vision mixer polls, and a health
// endpoint for the operator.
type Server struct {
	manager  *session.Manager
	exporter *export.Exporter

	defaultAlpha   config.AlphaMode
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string

	// exportURL builds the absolute URL a consumer uses to fetch a
	// session's PNG; shared with the webhook payload.
	exportURL func(sessionID string) string

	// renderPage serves the headless renderer's target page, when set.
	renderPage http.Handler
}

func NewServer(cfg *config.Config, manager *session.Manager, exporter *export.Exporter, exportURL func(string) string) *Server {
	s := &Server{
		manager:        manager,
		exporter:       exporter,
		defaultAlpha:   cfg.Export.DefaultAlpha,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.Server.AuthToken,
		exportURL:      exportURL,
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetRenderPage mounts the embedded render target at /render. Must be
// called before SetupRoutes.
func (s *Server) SetRenderPage(h http.Handler) {
	s.renderPage = h
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/atem-live.png", s.handleLivePNGQuery)
	mux.HandleFunc("/atem-live/", s.handleLivePNGPath)
	mux.HandleFunc("/api/health", s.handleHealth)

	if s.renderPage != nil {
		mux.Handle("/render", http.RedirectHandler("/render/", http.StatusMovedPermanently))
		mux.Handle("/render/", http.StripPrefix("/render/", s.renderPage))
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	sessionID := session.Normalize(r.URL.Query().Get("session"))
	role := session.ParseRole(r.URL.Query().Get("role"))

	c := newClient(conn, role)
	s.manager.Join(sessionID, c)
	log.Printf("client connected: session=%s role=%s addr=%s", sessionID, role, r.RemoteAddr)

	go func() {
		defer func() {
			s.manager.Leave(c)
			c.close()
			log.Printf("client disconnected: session=%s addr=%s", sessionID, r.RemoteAddr)
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleMessage(sessionID, c, raw)
		}
	}()
}

// handleMessage is the relay hot path: decode once, update the cache, fan
// out the raw frame, poke the exporter. The export pipeline is only ever
// nudged asynchronously from here; a render can never block a relay.
func (s *Server) handleMessage(sessionID string, c *client, raw []byte) {
	msg := Decode(raw)

	switch {
	case msg.IsState():
		data, settings := msg.StatePayloads()
		s.manager.Apply(sessionID, stateAction(msg.Action), data, settings, raw)
		s.manager.Broadcast(sessionID, raw, c)
		s.exporter.Trigger(sessionID)

	case msg.Action == ActionExportConfig:
		target := msg.SessionID
		if target == "" {
			target = sessionID
		}
		s.exporter.Pins().Set(target, msg.PinCurrentSession)
		if msg.PinCurrentSession {
			s.exporter.Refresh(target)
		}
		// Config acks are global: every control surface sees pin changes,
		// whichever room it sits in.
		s.manager.BroadcastAll(s.ack(target, msg.PinCurrentSession).encode())

	case msg.Action == ActionExportStatus:
		target := msg.SessionID
		if target == "" {
			target = sessionID
		}
		c.Send(s.ack(target, s.exporter.Pins().Pinned(target)).encode())

	case msg.Action == ActionExportRefresh:
		target := msg.SessionID
		if target == "" {
			target = sessionID
		}
		s.exporter.Refresh(target)

	case msg.Unrecognized():
		// Unknown or non-JSON: relay verbatim, interpret nothing.
		s.manager.Broadcast(sessionID, raw, c)
	}
}

func (s *Server) ack(sessionID string, pinned bool) ExportAck {
	return ExportAck{
		Action:            ActionExportAck,
		SessionID:         sessionID,
		PinCurrentSession: pinned,
		PinnedSessions:    s.exporter.Pins().List(),
		ExportURL:         s.exportURL(sessionID),
	}
}

// handleLivePNGQuery serves GET /atem-live.png?session=<id>[&alpha=..].
func (s *Server) handleLivePNGQuery(w http.ResponseWriter, r *http.Request) {
	s.serveLivePNG(w, r, r.URL.Query().Get("session"))
}

// handleLivePNGPath serves GET /atem-live/<id>.png[?alpha=..].
func (s *Server) handleLivePNGPath(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/atem-live/")
	name = strings.TrimSuffix(path.Base(name), ".png")
	s.serveLivePNG(w, r, name)
}

func (s *Server) serveLivePNG(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !s.exporter.Enabled() {
		http.NotFound(w, r)
		return
	}

	sessionID = session.Normalize(sessionID)

	mode := s.defaultAlpha
	explicit := false
	switch alpha := r.URL.Query().Get("alpha"); alpha {
	case "":
	case string(config.AlphaStraight):
		mode, explicit = config.AlphaStraight, true
	case string(config.AlphaPremultiplied):
		mode, explicit = config.AlphaPremultiplied, true
	default:
		http.Error(w, "alpha must be straight or premultiplied", http.StatusBadRequest)
		return
	}

	pub := s.exporter.Publisher()
	var file string
	if explicit {
		file = pub.Path(sessionID, mode)
	} else {
		// No variant named: the default artifact, whatever mode it holds.
		file = pub.Path(sessionID, "")
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")

	data, err := os.ReadFile(file)
	if err != nil {
		// Nothing exported yet: a transparent frame beats a 404 for a
		// switcher input that polls before the first render lands.
		width, height := s.exporter.Dimensions()
		data = export.TransparentPNG(width, height)
	}
	w.Write(data)
}

type healthResponse struct {
	Sessions   []string `json:"sessions"`
	Goroutines int      `json:"goroutines"`
	RSSBytes   uint64   `json:"rssBytes"`
	CPUPercent float64  `json:"cpuPercent"`
	HostMemPct float64  `json:"hostMemUsedPercent"`
}

// handleHealth reports process and host stats. The RSS figure is the quick
// tell for a leaking browser page.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	resp := healthResponse{
		Sessions:   s.manager.SessionIDs(),
		Goroutines: runtime.NumGoroutine(),
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			resp.RSSBytes = info.RSS
		}
		if cpu, err := p.CPUPercent(); err == nil {
			resp.CPUPercent = cpu
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.HostMemPct = vm.UsedPercent
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Versecast-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
