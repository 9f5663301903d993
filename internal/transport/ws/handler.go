package ws

import (
	"context"
	"net/http"
	"strings"
	"therapyroom/internal/model"
	"therapyroom/internal/room"
	"therapyroom/internal/service"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Authenticator verifies the credential presented on connect
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Identity, error)
}

// Coordinator is what a connection drives once it is upgraded
type Coordinator interface {
	Connect(ctx context.Context, peer room.Peer, id model.Identity) (*service.Client, error)
	Disconnect(ctx context.Context, cl *service.Client) error
	Handle(ctx context.Context, cl *service.Client, cmd model.Command) error
	Refuse(ctx context.Context, cl *service.Client, err error)
}

// Handler handles WebSocket connections
type Handler struct {
	auth     Authenticator
	coord    Coordinator
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. allowedOrigins may contain "*".
func NewHandler(auth Authenticator, coord Coordinator, allowedOrigins []string) *Handler {
	return &Handler{
		auth:  auth,
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ServeWS handles GET /v1/ws. The credential is checked before the upgrade.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Authenticate(r.Context(), tokenFrom(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("user", identity.UserID).Msg("websocket upgrade failed")
		return
	}

	// The connection outlives the request; it has its own context.
	ctx, cancel := context.WithCancel(context.Background())
	conn := newConnection(sendBufferSize)
	client, err := h.coord.Connect(ctx, conn, *identity)
	if err != nil {
		cancel()
		log.Error().Err(err).Str("user", identity.UserID).Msg("register connection")
		if err := wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server unavailable"),
			time.Now().Add(writeWait)); err != nil {
			log.Debug().Err(err).Str("user", identity.UserID).Msg("write close frame")
		}
		wsConn.Close()
		return
	}

	log.Info().Str("conn", client.ConnID).Str("user", identity.UserID).Str("role", string(identity.Role)).Msg("websocket connected")

	go h.writePump(wsConn, conn)
	go h.readPump(ctx, cancel, wsConn, conn, client)
}

// tokenFrom reads the credential from the query string or a bearer header.
func tokenFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return ""
}

func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, wsConn *websocket.Conn, conn *Connection, client *service.Client) {
	defer func() {
		cancel()
		disconnectCtx, done := context.WithTimeout(context.Background(), writeWait)
		if err := h.coord.Disconnect(disconnectCtx, client); err != nil {
			log.Warn().Err(err).Str("conn", client.ConnID).Msg("disconnect")
		}
		done()
		conn.Close()
		wsConn.Close()
		log.Info().Str("conn", client.ConnID).Str("user", client.Identity.UserID).Msg("websocket disconnected")
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn", client.ConnID).Msg("websocket read error")
			}
			return
		}

		cmd, err := model.DecodeCommand(data)
		if err != nil {
			h.coord.Refuse(ctx, client, err)
			continue
		}
		if err := h.coord.Handle(ctx, client, cmd); err != nil {
			log.Debug().Err(err).Str("conn", client.ConnID).Str("event", string(cmd.Type())).Msg("event refused")
		}
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
