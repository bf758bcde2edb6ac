package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/websocket"

	"themesync/document"
	"themesync/theme"
)

// SystemReporter accepts a system color-scheme preference reported by a tab.
type SystemReporter interface {
	Set(dark bool)
}

// Message types exchanged over the WebSocket.
const (
	MsgSnapshot = "snapshot"
	MsgSet      = "set"
	MsgToggle   = "toggle"
	MsgStorage  = "storage"
	MsgSystem   = "system"
	MsgError    = "error"
)

// clientMessage is sent by a tab.
type clientMessage struct {
	Type  string `json:"type"`
	Theme string `json:"theme,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
	Dark  bool   `json:"dark,omitempty"`
}

// stateMessage is sent to tabs after every engine notification.
type stateMessage struct {
	Type       string          `json:"type"`
	Snapshot   *theme.Snapshot `json:"snapshot"`
	Preference string          `json:"preference"`
	Document   *document.State `json:"document,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type themeRequest struct {
	Theme string `json:"theme"`
}

// Server exposes the theme engine to browser tabs over HTTP and WebSocket.
// Every open WebSocket is one mount of the engine.
type Server struct {
	engine   *theme.Engine
	doc      *document.Root
	mountCfg theme.Config
	system   SystemReporter
	hub      *WSConnectionManager
	logger   *slog.Logger
	upgrader websocket.Upgrader
	unsub    func()
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSystemReporter lets tabs report their prefers-color-scheme value.
func WithSystemReporter(r SystemReporter) Option {
	return func(s *Server) { s.system = r }
}

// WithDocument mirrors doc to tabs alongside each snapshot.
func WithDocument(doc *document.Root) Option {
	return func(s *Server) { s.doc = doc }
}

// NewServer creates a server around engine. hub must be the same manager
// the engine uses for storage events, so tab-reported storage changes reach
// it. cfg is used for every tab mount.
func NewServer(engine *theme.Engine, hub *WSConnectionManager, cfg theme.Config, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		hub:      hub,
		mountCfg: cfg.WithDefaults(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "api"))
	s.unsub = engine.Subscribe(s.broadcastState)
	return s
}

// Close stops broadcasting engine changes.
func (s *Server) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/theme", s.handleTheme)
	mux.HandleFunc("/api/theme/toggle", s.handleToggle)
	mux.HandleFunc("/api/theme/server-snapshot", s.handleServerSnapshot)
	mux.HandleFunc("/api/theme/variables.css", s.handleVariablesCSS)
	mux.HandleFunc("/api/theme/ws", s.handleWS)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"mounts": s.engine.MountCount(),
		"tabs":   s.hub.Len(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.state(MsgSnapshot))

	case http.MethodPost, http.MethodPut:
		var req themeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		pref, err := theme.ParsePreference(req.Theme)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.engine.SetTheme(pref)
		writeJSON(w, http.StatusOK, s.state(MsgSnapshot))

	default:
		w.Header().Set("Allow", "GET, POST, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.ToggleMode()
	writeJSON(w, http.StatusOK, s.state(MsgSnapshot))
}

func (s *Server) handleServerSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ServerSnapshot())
}

// handleVariablesCSS serves the configured custom properties as a
// stylesheet keyed on the configured attribute or class.
func (s *Server) handleVariablesCSS(w http.ResponseWriter, r *http.Request) {
	css := VariablesCSS(s.engine.Config())

	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write([]byte(css))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", slog.Any("error", err))
		return
	}
	defer conn.Close()

	id := s.hub.Add(conn)
	defer s.hub.Remove(id)

	cfg := s.mountCfg
	if forced := r.URL.Query().Get("forced"); forced != "" {
		if t, err := theme.ParseTheme(forced); err == nil {
			cfg.ForcedTheme = t
		}
	}
	unmount := s.engine.Mount(cfg)
	defer unmount()

	s.logger.Debug("tab connected", slog.String("id", id), slog.Int("mounts", s.engine.MountCount()))
	if err := s.hub.WriteJSON(id, s.state(MsgSnapshot)); err != nil {
		return
	}

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("tab read", slog.String("id", id), slog.Any("error", err))
			}
			s.logger.Debug("tab disconnected", slog.String("id", id))
			return
		}
		s.handleMessage(id, msg)
	}
}

func (s *Server) handleMessage(id string, msg clientMessage) {
	switch msg.Type {
	case MsgSet:
		pref, err := theme.ParsePreference(msg.Theme)
		if err != nil {
			s.replyError(id, err.Error())
			return
		}
		s.engine.SetTheme(pref)
	case MsgToggle:
		s.engine.ToggleMode()
	case MsgStorage:
		if err := s.hub.relayStorage(msg.Key, msg.Value); err != nil {
			s.logger.Warn("relay storage change", slog.String("key", msg.Key), slog.Any("error", err))
			s.replyError(id, err.Error())
		}
	case MsgSystem:
		if s.system == nil {
			s.replyError(id, "system preference reports are not accepted")
			return
		}
		s.system.Set(msg.Dark)
	case MsgSnapshot:
		_ = s.hub.WriteJSON(id, s.state(MsgSnapshot))
	default:
		s.replyError(id, "unknown message type "+msg.Type)
	}
}

func (s *Server) replyError(id, text string) {
	st := s.state(MsgError)
	st.Error = text
	_ = s.hub.WriteJSON(id, st)
}

func (s *Server) broadcastState() {
	s.hub.Broadcast(s.state(MsgSnapshot))
}

func (s *Server) state(kind string) stateMessage {
	msg := stateMessage{
		Type:       kind,
		Snapshot:   s.engine.Snapshot(),
		Preference: string(s.engine.CurrentPreference()),
	}
	if s.doc != nil {
		st := s.doc.State()
		msg.Document = &st
	}
	return msg
}

// VariablesCSS renders cfg's custom properties as one rule per theme.
func VariablesCSS(cfg theme.Config) string {
	var b strings.Builder
	for _, t := range []theme.Theme{theme.Light, theme.Dark} {
		vars := cfg.Variables[t]
		if len(vars) == 0 {
			continue
		}
		names := make([]string, 0, len(vars))
		for k := range vars {
			names = append(names, k)
		}
		sort.Strings(names)

		b.WriteString(selectorFor(cfg, t))
		b.WriteString(" {\n")
		for _, k := range names {
			b.WriteString("  ")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(vars[k])
			b.WriteString(";\n")
		}
		b.WriteString("}\n")
	}
	return b.String()
}

func selectorFor(cfg theme.Config, t theme.Theme) string {
	if cfg.Mode == theme.ModeClass {
		return ":root." + string(t)
	}
	return `:root[` + cfg.Attribute + `="` + string(t) + `"]`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
