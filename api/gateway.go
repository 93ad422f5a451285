package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	sendBufferSize = 64
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errConnClosed     = errors.New("connection closed")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// cross-origin board clients are expected; auth happens via JWT
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsSession is one live websocket connection. Sends go through a buffered
// channel drained by a single writer goroutine so no handler ever blocks
// on a slow client; once the buffer is full, frames are dropped
// (delivery is at-most-once, clients resync over REST).
type wsSession struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
}

func newSession(userID string, ws *websocket.Conn) *wsSession {
	return &wsSession{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (s *wsSession) ID() string     { return s.id }
func (s *wsSession) UserID() string { return s.userID }

func (s *wsSession) Send(payload []byte) error {
	select {
	case <-s.done:
		return errConnClosed
	default:
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case payload := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// serveWS upgrades the connection and runs its read loop until disconnect.
func serveWS(b *Broadcaster, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		sess := newSession(userID, ws)
		logger.WithFields(log.Fields{"conn": sess.id, "user": userID}).Info("client connected")
		go sess.writePump()

		ctx := c.Request().Context()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				break
			}
			b.HandleFrame(ctx, sess, raw)
		}

		b.Disconnect(sess)
		close(sess.done)
		_ = ws.Close()
		logger.WithFields(log.Fields{"conn": sess.id, "user": userID}).Info("client disconnected")
		return nil
	}
}
