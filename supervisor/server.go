package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/guseggert/wrapperconsole/protocol"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	readLimit    = 1 << 16
	writeTimeout = 10 * time.Second
)

// CommandSink accepts commands read from clients.
type CommandSink interface {
	Submit(ctx context.Context, cmd protocol.Command) error
}

// Server serves the console channel, health and metrics over HTTP.
type Server struct {
	log        *zap.SugaredLogger
	hub        *Hub
	sink       CommandSink
	listenAddr string
	prefix     string
	registry   *prometheus.Registry
	metrics    *Metrics

	httpServer *http.Server
}

type ServerOption func(s *Server)

func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		s.log = l.Named("server").Sugar()
	}
}

func WithListenAddr(addr string) ServerOption {
	return func(s *Server) {
		s.listenAddr = addr
	}
}

// WithPrefix mounts every route under prefix, which must start with / and not end with one.
func WithPrefix(prefix string) ServerOption {
	return func(s *Server) {
		s.prefix = prefix
	}
}

// WithRegistry serves reg on the metrics route and records server metrics into m, which must be registered with reg.
func WithRegistry(reg *prometheus.Registry, m *Metrics) ServerOption {
	return func(s *Server) {
		s.registry = reg
		s.metrics = m
	}
}

func NewServer(hub *Hub, sink CommandSink, opts ...ServerOption) *Server {
	s := &Server{
		log:        zap.NewNop().Sugar(),
		hub:        hub,
		sink:       sink,
		listenAddr: ":8080",
	}
	for _, o := range opts {
		o(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.metrics = NewMetrics(s.registry)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET(s.prefix+"/ws", s.serveWS)
	router.GET(s.prefix+"/healthz", s.healthz)
	router.Handler(http.MethodGet, s.prefix+"/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return router
}

// Run serves until ctx is done, then shuts the HTTP server down.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	s.log.Infow("serving", "Addr", l.Addr().String(), "Prefix", s.prefix)

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(l) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.SetKeepAlivesEnabled(false)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		return nil
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		s.log.Debugf("error accepting WebSocket conn: %s", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	p := &clientPump{
		log:    s.log.Named("client"),
		conn:   conn,
		client: s.hub.register(),
		ctx:    ctx,
		cancel: cancel,
	}
	p.log.Debugw("accepted WebSocket conn", "ID", p.client.id, "Remote", r.RemoteAddr)

	p.wg.Add(1)
	go p.writeEvents(s.metrics)
	p.readCommands(s.sink, s.metrics)
	s.hub.unregister(p.client)
	p.wg.Wait()
}

// clientPump moves one client's events out and its commands in.
type clientPump struct {
	log    *zap.SugaredLogger
	conn   *websocket.Conn
	client *client
	ctx    context.Context
	cancel func()

	wg            sync.WaitGroup
	closeConnOnce sync.Once
}

func (p *clientPump) close(code websocket.StatusCode, reason string) {
	p.closeConnOnce.Do(func() {
		if err := p.conn.Close(code, reason); err != nil {
			p.log.Debugf("error closing conn: %s", err)
		}
	})
}

func (p *clientPump) readCommands(sink CommandSink, m *Metrics) {
	defer p.cancel()
	for {
		typ, b, err := p.conn.Read(p.ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
			p.log.Debug("got normal closure from client")
			return
		}
		if err != nil {
			p.log.Debugf("message reader got error: %s", err)
			p.close(websocket.StatusInternalError, "read error")
			return
		}
		if typ != websocket.MessageText {
			p.log.Debugw("ignoring non-text message", "Type", typ)
			continue
		}
		cmd, err := protocol.DecodeCommand(b)
		if err != nil {
			p.log.Warnw("dropping malformed command", "Error", err)
			continue
		}
		m.Commands.WithLabelValues(string(cmd.Target)).Inc()
		if err := sink.Submit(p.ctx, cmd); err != nil {
			p.log.Debugf("error submitting command: %s", err)
			return
		}
	}
}

// writeEvents writes each batch of queued events as one frame until the client's queue is closed.
func (p *clientPump) writeEvents(m *Metrics) {
	defer p.wg.Done()
	for {
		batch, ok := p.client.next()
		if !ok {
			p.close(websocket.StatusNormalClosure, "")
			return
		}
		frame, err := protocol.EncodeFrame(batch...)
		if err != nil {
			p.log.Debugf("error encoding frame: %s", err)
			continue
		}
		ctx, cancel := context.WithTimeout(p.ctx, writeTimeout)
		err = p.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			p.log.Debugf("error writing frame: %s", err)
			p.cancel()
			p.close(websocket.StatusInternalError, "write error")
			return
		}
		m.Frames.Inc()
	}
}
