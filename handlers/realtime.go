package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/config"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/realtime"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Authorizer checks document access for realtime actions: read to join,
// write to publish changes.
type Authorizer interface {
	Authorize(ctx context.Context, docID, identity string, write bool) error
}

// RealtimeHandler serves the websocket change channel.
type RealtimeHandler struct {
	hub      *realtime.Hub
	auth     Authorizer
	verifier middleware.Verifier
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
}

// NewRealtimeHandler builds the handler. allowedOrigin "" or "*" accepts
// any origin.
func NewRealtimeHandler(hub *realtime.Hub, auth Authorizer, ver middleware.Verifier, cfg config.RealtimeConfig, allowedOrigin string) *RealtimeHandler {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1 << 20
	}
	return &RealtimeHandler{
		hub:      hub,
		auth:     auth,
		verifier: ver,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || strings.EqualFold(origin, allowedOrigin)
			},
		},
	}
}

// Register mounts GET /ws. Browsers cannot set headers on a websocket
// handshake, so the token may also come in the "token" query parameter.
func (h *RealtimeHandler) Register(r gin.IRouter) {
	r.GET("/ws", tokenFromQuery, middleware.AuthMiddleware(h.verifier), h.Serve)
}

func tokenFromQuery(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		if tok := c.Query("token"); tok != "" {
			c.Request.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	c.Next()
}

// wsSink writes queued messages to the socket. Only the client's writer
// goroutine calls Write and Ping.
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSink) Write(m realtime.Message) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(m)
}

func (s *wsSink) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

func (s *wsSink) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.writeTimeout))
	return s.conn.Close()
}

type presence struct {
	Event        string   `json:"event"`
	Participants []string `json:"participants,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Serve upgrades the request and runs the read loop until the peer goes
// away. Leaving the loop for any reason disconnects the client from every
// document it joined.
func (h *RealtimeHandler) Serve(c *gin.Context) {
	identity := middleware.Identity(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("realtime: websocket upgrade failed: %v", err)
		return
	}
	client := realtime.NewClient(uuid.NewString(), identity, &wsSink{conn: conn, writeTimeout: h.cfg.WriteTimeout}, h.cfg.QueueSize, h.cfg.PingInterval)
	log := logger.With("conn", client.ID(), "user", identity)
	log.Debugw("realtime connection opened")

	defer func() {
		for _, docID := range h.hub.Disconnect(client) {
			h.announce(client, docID, "left")
		}
		client.Close()
		client.Wait()
		log.Debugw("realtime connection closed", "dropped", client.Dropped())
	}()

	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ctx := c.Request.Context()
	for {
		var in realtime.Message
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugw("realtime read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		h.handle(ctx, client, identity, in, log)
	}
}

func (h *RealtimeHandler) handle(ctx context.Context, client *realtime.Client, identity string, in realtime.Message, log *zap.SugaredLogger) {
	docID := strings.TrimSpace(in.DocumentID)
	switch in.Type {
	case realtime.TypeJoin:
		if err := h.auth.Authorize(ctx, docID, identity, false); err != nil {
			h.fail(client, docID, err)
			return
		}
		if err := h.hub.Join(client, docID); err != nil {
			h.fail(client, docID, err)
			return
		}
		// A revoke saved between the check and the join restricted the topic
		// before this connection was in it.
		if err := h.auth.Authorize(ctx, docID, identity, false); err != nil {
			h.hub.Leave(client, docID)
			h.fail(client, docID, err)
			return
		}
		log.Debugw("joined document", "document", docID)
		client.Send(realtime.Message{
			Type:       realtime.TypeJoined,
			DocumentID: docID,
			Payload:    mustJSON(presence{Event: "joined", Participants: h.hub.Participants(docID)}),
			Timestamp:  time.Now().UTC(),
		})
		h.announce(client, docID, "joined")

	case realtime.TypeLeave:
		if h.hub.Leave(client, docID) {
			h.announce(client, docID, "left")
		}

	case realtime.TypeChange:
		if docID == "" {
			h.fail(client, docID, apperr.InvalidArgument("documentId is required"))
			return
		}
		if err := h.auth.Authorize(ctx, docID, identity, true); err != nil {
			h.fail(client, docID, err)
			return
		}
		h.hub.Publish(docID, client.ID(), realtime.Message{
			Type:       realtime.TypeUpdated,
			DocumentID: docID,
			Payload:    in.Payload,
			From:       client.ID(),
			UserID:     identity,
		})

	default:
		h.fail(client, docID, apperr.InvalidArgument("unknown message type %q", in.Type))
	}
}

func (h *RealtimeHandler) announce(client *realtime.Client, docID, event string) {
	h.hub.Publish(docID, client.ID(), realtime.Message{
		Type:       realtime.TypePresence,
		DocumentID: docID,
		Payload:    mustJSON(presence{Event: event}),
		From:       client.ID(),
		UserID:     client.UserID(),
	})
}

func (h *RealtimeHandler) fail(client *realtime.Client, docID string, err error) {
	client.Send(realtime.Message{
		Type:       realtime.TypeError,
		DocumentID: docID,
		Payload:    mustJSON(errorPayload{Code: string(apperr.KindOf(err)), Message: apperr.PublicMessage(err)}),
		Timestamp:  time.Now().UTC(),
	})
}
