// Package live serves sessions over WebSocket. A client sends dispatch
// and set requests as JSON text frames; after each one the server replies
// with the re-rendered tree and the failures of the passes it caused.
package live

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/recera/reflow/internal/session"
	rhtml "github.com/recera/reflow/pkg/renderer/html"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 16
)

// Server handles WebSocket connections for live sessions.
type Server struct {
	upgrader websocket.Upgrader
	manager  *Manager
	logger   *slog.Logger
	mux      *http.ServeMux
	render   rhtml.Options
}

// NewServer creates a server for the sessions of m. It routes
// GET /live/{id} to the socket and GET /render/{id} to a one-shot HTML
// snapshot.
func NewServer(m *Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		manager: m,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /live/{id}", s.handleWebSocket)
	s.mux.HandleFunc("GET /render/{id}", s.handleRender)
	return s
}

// Manager returns the session manager.
func (s *Server) Manager() *Manager { return s.manager }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) open(w http.ResponseWriter, id string) (*session.Session, bool) {
	sess, err := s.manager.Open(id)
	switch {
	case errors.Is(err, ErrUnknownSession):
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	case err != nil:
		s.logger.Error("open session", "id", id, "err", err)
		http.Error(w, "cannot create session", http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.open(w, r.PathValue("id"))
	if !ok {
		return
	}
	out, err := sess.Render(s.render)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(out))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.open(w, id)
	if !ok {
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "id", id, "err", err)
		return
	}

	c := &conn{
		ws:     ws,
		sess:   sess,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: s.logger.With("session", id),
		render: s.render,
	}
	s.manager.attach(id)
	go func() {
		defer s.manager.detach(id)
		c.serve()
	}()
}

// conn is one client socket on a session.
type conn struct {
	ws     *websocket.Conn
	sess   *session.Session
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	seq    uint64
	logger *slog.Logger
	render rhtml.Options
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *conn) serve() {
	defer c.close()
	go c.writer()

	c.logger.Debug("connected", "remote", c.ws.RemoteAddr().String())
	c.reply(TypeRender, "")

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected close", "err", err)
			} else {
				c.logger.Debug("disconnected", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			c.reply(TypeError, "binary frames are not supported")
			continue
		}
		c.handle(data)
	}
}

func (c *conn) handle(data []byte) {
	action, err := DecodeMessage(data)
	if err != nil {
		c.reply(TypeError, err.Error())
		return
	}
	c.logger.Debug("action", "action", action.String())
	if err := c.sess.Apply(action); err != nil {
		c.reply(TypeError, err.Error())
		return
	}
	c.reply(TypeRender, "")
}

// reply renders the session and queues the result, carrying every
// failure reported since the previous reply.
func (c *conn) reply(typ MessageType, msg string) {
	c.seq++
	r := Reply{Type: typ, Seq: c.seq, Message: msg}
	if typ == TypeRender {
		html, err := c.sess.Render(c.render)
		if err != nil {
			r.Type, r.Message = TypeError, err.Error()
		}
		r.HTML = html
	}
	r.Errors = diagnostics(c.sess.Drain())

	data, err := EncodeReply(r)
	if err != nil {
		c.logger.Error("encode reply", "err", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}

func (c *conn) writer() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("write failed", "err", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
