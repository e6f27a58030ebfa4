// Package server hosts the supplies ledger over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zot/supplies/internal/config"
	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/protocol"
)

// Server is the main server that ties all components together.
type Server struct {
	config       *config.Config
	log          *zap.Logger
	ledger       Ledger
	handler      *protocol.Handler
	wsEndpoint   *WebSocketEndpoint
	httpEndpoint *HTTPEndpoint
	batcher      *OutgoingBatcher
	unsubscribe  func()
	httpServer   *http.Server
}

// New creates a server over ledger. Every change to the ledger is pushed to
// WebSocket clients as a state message.
func New(cfg *config.Config, log *zap.Logger, ledger Ledger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		config: cfg,
		log:    log,
		ledger: ledger,
	}
	s.handler = protocol.NewHandler(ledger, log)
	s.wsEndpoint = NewWebSocketEndpoint(ledger, s.handler, log)
	s.httpEndpoint = NewHTTPEndpoint(ledger, s.wsEndpoint, log)
	s.batcher = NewOutgoingBatcher(s.wsEndpoint, log.Named("batcher"))

	unsubscribe, err := ledger.Subscribe(s.onChange)
	if err != nil {
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}
	s.unsubscribe = unsubscribe
	return s, nil
}

// onChange runs on the service executor and must not block.
func (s *Server) onChange(snap controller.Snapshot) {
	msg, err := protocol.NewMessage(protocol.MsgState, snap)
	if err != nil {
		s.log.Error("encode state", zap.Error(err))
		return
	}
	s.batcher.Queue(msg)
}

// Handler returns the HTTP handler serving the API and the WebSocket feed.
func (s *Server) Handler() http.Handler {
	return s.httpEndpoint
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.httpEndpoint,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", "http://"+ln.Addr().String()))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("shutting down")
	err := s.Shutdown(shutdownCtx)
	<-errCh
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.stop()
	return err
}

func (s *Server) stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.batcher.Clear()
	s.wsEndpoint.Close()
}
