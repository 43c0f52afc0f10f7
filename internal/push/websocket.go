package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second
	pongWait  = time.Minute
)

// WebsocketConn adapts a gorilla connection to Conn.
type WebsocketConn struct {
	socket    *websocket.Conn
	closeOnce sync.Once
}

func NewWebsocketConn(conn *websocket.Conn) *WebsocketConn {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &WebsocketConn{socket: conn}
}

func (wc *WebsocketConn) Write(data []byte) error {
	_ = wc.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return wc.socket.WriteMessage(websocket.TextMessage, data)
}

func (wc *WebsocketConn) Ping() error {
	_ = wc.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return wc.socket.WriteMessage(websocket.PingMessage, nil)
}

func (wc *WebsocketConn) Read() ([]byte, error) {
	_, p, err := wc.socket.ReadMessage()
	return p, err
}

func (wc *WebsocketConn) Close() {
	wc.closeOnce.Do(func() {
		_ = wc.socket.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wc.socket.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = wc.socket.Close()
	})
}

// Upgrader accepts push channel connections. Origin checks are left to the
// CORS layer in front of the HTTP server.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscription is the client side of the push channel.
type Subscription struct {
	conn      *websocket.Conn
	messages  chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the push channel at wsURL, authenticating with token.
func Dial(ctx context.Context, wsURL, token string) (*Subscription, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Join(err, errors.New(resp.Status))
		}
		return nil, err
	}
	s := &Subscription{
		conn:     conn,
		messages: make(chan Message),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Messages delivers envelopes in arrival order. The channel is closed when
// the connection ends or Close is called.
func (s *Subscription) Messages() <-chan Message { return s.messages }

// Close deactivates the subscription; no message is delivered afterwards.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *Subscription) readLoop() {
	defer close(s.messages)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Debug().Err(err).Msg("push: subscription closed")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("push: dropping malformed message")
			continue
		}
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case s.messages <- msg:
		case <-s.done:
			return
		}
	}
}
