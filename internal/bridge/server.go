package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Handler receives requests decoded from clients.
type Handler interface {
	Handle(protocol.Outbound)
}

var upgrader = websocket.Upgrader{
	// the bridge binds to loopback by default
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the hub and a request handler over HTTP.
type Server struct {
	hub     *Hub
	handler Handler
	engine  *gin.Engine
}

// NewServer builds the routes: GET /healthz and GET /ws.
func NewServer(hub *Hub, handler Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		logs.GinLogger(),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})),
	)

	engine.SetTrustedProxies(nil)

	s := &Server{hub: hub, handler: handler, engine: engine}
	engine.GET("/healthz", s.health)
	engine.GET("/ws", s.websocket)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logs.Info().Str("addr", addr).Msg("bridge listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": s.hub.Clients()})
}

func (s *Server) websocket(c *gin.Context) {
	logs.MarkHijacked(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	out, unsubscribe := s.hub.Subscribe()
	done := make(chan struct{})
	go s.writeLoop(conn, out, done)

	s.readLoop(conn)
	unsubscribe()
	<-done
	conn.Close()
}

func (s *Server) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logs.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		msg, err := protocol.DecodeOutbound(data)
		if err != nil {
			logs.Warn().Err(err).Msg("bad client message")
			continue
		}
		if reply, ok := msg.(protocol.PromptReply); ok {
			s.hub.Reply(reply)
			continue
		}
		s.handler.Handle(msg)
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, out <-chan []byte, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logs.Debug().Err(err).Msg("websocket write")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
