package ws

import (
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-intel/gateway"
)

const (
	pingInterval = 15 * time.Second
	readLimit    = 1 << 16
)

// Server upgrades HTTP requests to websocket connections and pumps
// decoded intents into the gateway.
type Server struct {
	log       *slog.Logger
	gateway   *gateway.Gateway
	upgrader  websocket.Upgrader
	buffer    int
	annotator string
}

// NewServer builds the transport front. The annotator name only shows
// up in the health payload.
func NewServer(log *slog.Logger, gw *gateway.Gateway, connectionBuffer int, annotator string) *Server {
	if connectionBuffer <= 0 {
		connectionBuffer = 16
	}
	return &Server{
		log:     log,
		gateway: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		buffer:    connectionBuffer,
		annotator: annotator,
	}
}

// Routes mounts the websocket endpoint and a liveness probe.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{
		"status":    "ok",
		"annotator": s.annotator,
		"at":        time.Now().UTC(),
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Debug("Writing health payload failed", "error", err)
	}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	conn := newWsConn(connID, sock, s.buffer)
	s.gateway.OnConnect(connID, conn)
	s.log.Info("Connection opened", "conn", connID, "remote", r.RemoteAddr)

	go conn.writeLoop(s.log, pingInterval)
	s.readLoop(r, conn)

	s.gateway.OnDisconnect(connID)
	_ = conn.Close()
	s.log.Info("Connection closed", "conn", connID)
}

func (s *Server) readLoop(r *http.Request, conn *wsConn) {
	ctx := r.Context()
	conn.conn.SetReadLimit(readLimit)
	_ = conn.conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.gateway.Dispatch(ctx, conn.id, nil)
			continue
		}
		intent, err := DecodeIntent(env)
		if err != nil {
			s.gateway.Dispatch(ctx, conn.id, nil)
			continue
		}
		s.gateway.Dispatch(ctx, conn.id, intent)
	}
}
