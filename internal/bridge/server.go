package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/simplelink/internal/discovery"
	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/version"
	"go.uber.org/zap"
)

// Config holds the bridge configuration
type Config struct {
	Host     string
	Port     int
	Path     string // websocket endpoint, defaults to discovery.DefaultPath
	CertPath string // TLS certificate; plain websocket when empty
	KeyPath  string
	// Name is the mDNS instance name. Empty disables advertisement.
	Name string
	// ChipKind is advertised in the "chip" TXT record.
	ChipKind   string
	CaptureDir string // Directory to write frame captures (empty = disabled)
}

// Server exposes one chip to one remote host at a time.
type Server struct {
	config    *Config
	chip      transport.Transport
	tlsConfig *tls.Config
	upgrader  websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	advert     *discovery.Advertisement

	wg       sync.WaitGroup
	mu       sync.Mutex
	sessions map[string]*websocket.Conn
}

// New creates a bridge serving chip.
func New(config *Config, chip transport.Transport) (*Server, error) {
	if chip == nil {
		return nil, errors.New("bridge needs a chip")
	}
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}

	var tlsConfig *tls.Config
	if config.CertPath != "" || config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	return &Server{
		config:    config,
		chip:      chip,
		tlsConfig: tlsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		sessions: make(map[string]*websocket.Conn),
	}, nil
}

// Start listens, advertises the bridge and serves until SIGINT or SIGTERM.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if s.tlsConfig != nil {
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
		listener = tls.NewListener(listener, s.tlsConfig)
	}

	logging.Info("Starting bridge",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.config.Path),
		zap.Bool("tls", s.tlsConfig != nil),
	)

	if s.config.Name != "" {
		port := listener.Addr().(*net.TCPAddr).Port
		advert, err := discovery.Register(s.config.Name, port, s.txtRecords())
		if err != nil {
			_ = listener.Close()
			return err
		}
		s.advert = advert
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping bridge...")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Serve accepts websocket sessions on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge server: %w", err)
	}
	return nil
}

func (s *Server) txtRecords() map[string]string {
	txt := map[string]string{
		"path":    s.config.Path,
		"version": version.Version,
	}
	if s.config.ChipKind != "" {
		txt["chip"] = s.config.ChipKind
	}
	if s.tlsConfig != nil {
		txt["tls"] = "1"
	}
	return txt
}

// Shutdown gracefully shuts down the bridge
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down bridge...")

	s.advert.Shutdown()

	s.mu.Lock()
	srv := s.httpServer
	for addr, conn := range s.sessions {
		if conn == nil {
			continue
		}
		logging.Info("Closing active session", zap.String("remote_addr", addr))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	s.mu.Unlock()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}

	// Hijacked websocket connections are not tracked by http.Server.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All sessions closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	case <-time.After(10 * time.Second):
		logging.Warn("Shutdown timeout after 10 seconds, forcing close")
	}

	logging.Sync()
	return nil
}

// ActiveSessions returns the number of connected remote hosts
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// claim reserves the chip for remoteAddr. It fails when another host
// already holds it.
func (s *Server) claim(remoteAddr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) > 0 {
		return false
	}
	s.sessions[remoteAddr] = nil
	return true
}

// attach records the upgraded connection of a claimed session.
func (s *Server) attach(remoteAddr string, conn *websocket.Conn) {
	s.mu.Lock()
	s.sessions[remoteAddr] = conn
	s.mu.Unlock()
}

func (s *Server) release(remoteAddr string) {
	s.mu.Lock()
	delete(s.sessions, remoteAddr)
	s.mu.Unlock()
}

// Addr returns the listen address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
