// Package ws carries the replication channel over websockets: one
// connection per participant, upgraded from HTTP, receiving the snapshot
// pull response and the one-way event stream as JSON text messages.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
	"github.com/suit-up-repos/questd/internal/platform/timeouts"
	"github.com/suit-up-repos/questd/internal/replication"
	"github.com/suit-up-repos/questd/internal/storage"
)

// DefaultWriteTimeout bounds a single websocket write before the connection
// is considered dead.
const DefaultWriteTimeout = timeouts.WebsocketWrite

// SessionHooks is the authority-side session lifecycle the server drives:
// a connection registers the participant's session, a disconnect tears it
// down. Wired after construction because the engine consumes the server as
// its event sink.
type SessionHooks interface {
	RegisterSession(ctx context.Context, participantID string) error
	UnregisterSession(ctx context.Context, participantID string)
}

// viewer is one participant's live connection.
type viewer struct {
	id            string
	participantID string
	conn          *websocket.Conn

	// writeMu serializes every write on the connection. The snapshot
	// response holds it across the store read so no event can slip in
	// between the loaded mark and the snapshot frame.
	writeMu sync.Mutex
	loaded  bool
}

// Server owns the participant viewer registry and implements
// replication.Sink against it.
type Server struct {
	store        storage.QuestStore
	stats        storage.StatisticsStore
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	mu      sync.Mutex
	hooks   SessionHooks
	viewers map[string]*viewer
}

// NewServer creates a replication server over the given store. The stats
// store is optional and only feeds the statsz endpoint.
func NewServer(store storage.QuestStore, stats storage.StatisticsStore, writeTimeout time.Duration) (*Server, error) {
	if store == nil {
		return nil, apperrors.New(apperrors.CodeUnknown, "quest store is required")
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Server{
		store: store,
		stats: stats,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		writeTimeout: writeTimeout,
		viewers:      make(map[string]*viewer),
	}, nil
}

// SetSessionHooks wires the session lifecycle callbacks. Must be called
// before the server accepts connections.
func (s *Server) SetSessionHooks(hooks SessionHooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = hooks
}

// Handler returns the HTTP surface: the websocket upgrade endpoint plus
// health and stats probes, wrapped with otel instrumentation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/statsz", s.handleStatsz)
	return otelhttp.NewHandler(mux, "questd.replication")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleStatsz(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "statistics unavailable", http.StatusServiceUnavailable)
		return
	}
	stats, err := s.stats.GetQuestStatistics(r.Context())
	if err != nil {
		log.Printf("ws: statistics err=%v", err)
		http.Error(w, "statistics unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int64{
		"participants": stats.ParticipantCount,
		"records":      stats.RecordCount,
		"completed":    stats.CompletedCount,
	}); err != nil {
		log.Printf("ws: statsz encode err=%v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	participantID := strings.TrimSpace(r.URL.Query().Get("participant"))
	if participantID == "" {
		http.Error(w, "missing participant", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade participant_id=%s err=%v", participantID, err)
		return
	}

	v := &viewer{
		id:            uuid.NewString(),
		participantID: participantID,
		conn:          conn,
	}
	s.subscribe(v)
	log.Printf("ws: connected participant_id=%s conn_id=%s", participantID, v.id)

	hooks := s.sessionHooks()
	if hooks != nil {
		if err := hooks.RegisterSession(r.Context(), participantID); err != nil {
			log.Printf("ws: register session participant_id=%s err=%v", participantID, err)
		}
	}

	s.readLoop(r.Context(), v)

	replaced := !s.unsubscribe(v)
	conn.Close()
	// A replacement connection keeps the session alive; only a true
	// disconnect unregisters it.
	if hooks != nil && !replaced {
		hooks.UnregisterSession(context.WithoutCancel(r.Context()), participantID)
	}
	log.Printf("ws: disconnected participant_id=%s conn_id=%s replaced=%v", participantID, v.id, replaced)
}

// subscribe installs a viewer, replacing any previous connection for the
// same participant.
func (s *Server) subscribe(v *viewer) {
	s.mu.Lock()
	previous := s.viewers[v.participantID]
	s.viewers[v.participantID] = v
	s.mu.Unlock()

	if previous != nil {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection")
		_ = previous.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(s.writeTimeout))
		previous.conn.Close()
		log.Printf("ws: replaced participant_id=%s conn_id=%s", v.participantID, previous.id)
	}
}

// unsubscribe removes a viewer if it is still the participant's current
// connection. It reports whether the viewer was removed.
func (s *Server) unsubscribe(v *viewer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.viewers[v.participantID]
	if !ok || current != v {
		return false
	}
	delete(s.viewers, v.participantID)
	return true
}

func (s *Server) sessionHooks() SessionHooks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks
}

func (s *Server) readLoop(ctx context.Context, v *viewer) {
	for {
		_, payload, err := v.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("ws: discarding malformed message participant_id=%s err=%v", v.participantID, err)
			continue
		}
		switch msg.Type {
		case MessageClientLoaded:
			if err := s.handleClientLoaded(ctx, v, msg.RequestID); err != nil {
				log.Printf("ws: client loaded participant_id=%s err=%v", v.participantID, err)
			}
		default:
			log.Printf("ws: discarding unknown message participant_id=%s type=%q", v.participantID, msg.Type)
		}
	}
}

// handleClientLoaded marks the viewer event-eligible and answers with the
// participant's full quest snapshot. The loaded mark happens before the
// store read, so the snapshot is at-or-after the point the stream opens and
// no committed event can fall between them unseen.
func (s *Server) handleClientLoaded(ctx context.Context, v *viewer, requestID string) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()

	s.mu.Lock()
	v.loaded = true
	s.mu.Unlock()

	records, err := s.store.ListQuests(ctx, v.participantID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStoreFailure, "list quest records", err)
	}
	return s.writeLocked(v, ServerMessage{
		Type:      MessageSnapshot,
		RequestID: requestID,
		Quests:    toPayloads(records),
	})
}

// Publish implements replication.Sink. Events for participants without a
// loaded viewer are dropped; the snapshot pull is the recovery path.
func (s *Server) Publish(ctx context.Context, participantID string, evt replication.Event) error {
	if !evt.IsValid() {
		return apperrors.New(apperrors.CodeUnknown, fmt.Sprintf("invalid replication event %q", evt.Type))
	}

	s.mu.Lock()
	v, ok := s.viewers[participantID]
	loaded := ok && v.loaded
	s.mu.Unlock()
	if !loaded {
		return apperrors.WithMetadata(apperrors.CodeViewerNotConnected,
			"participant has no loaded viewer",
			map[string]string{"participant_id": participantID})
	}

	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return s.writeLocked(v, ServerMessage{Type: MessageEvent, Event: &evt})
}

// writeLocked writes one message to a viewer. Callers hold v.writeMu. A
// failed write tears the connection down; the client reconnects and pulls a
// fresh snapshot.
func (s *Server) writeLocked(v *viewer, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal server message: %w", err)
	}
	if err := v.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		v.conn.Close()
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close tears down every live viewer connection.
func (s *Server) Close() {
	s.mu.Lock()
	viewers := make([]*viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}
	s.viewers = make(map[string]*viewer)
	s.mu.Unlock()

	for _, v := range viewers {
		message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = v.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(s.writeTimeout))
		v.conn.Close()
	}
}
