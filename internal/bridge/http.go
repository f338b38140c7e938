package bridge

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/version"
	"go.uber.org/zap"
)

// Health is the body of the health endpoint.
type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Chip     string `json:"chip,omitempty"`
	Version  string `json:"version"`
}

// Handler returns the bridge HTTP handler: the websocket endpoint at the
// configured path and a JSON health report at /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleBridge)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	LogHTTPRequestDetails(r, remoteAddr)

	// Claim before upgrading so a second host sees a plain HTTP status.
	if !s.claim(remoteAddr) {
		logging.Warn("Rejecting session, chip already in use",
			zap.String("remote_addr", remoteAddr),
		)
		http.Error(w, "chip already in use", http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release(remoteAddr)
		logging.Error("Invalid WebSocket upgrade request",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}
	s.attach(remoteAddr, conn)

	s.wg.Add(1)
	defer s.wg.Done()
	defer s.release(remoteAddr)

	if err := s.runSession(conn, remoteAddr); err != nil {
		logging.Error("WebSocket session error",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Health{
		Status:   "ok",
		Sessions: s.ActiveSessions(),
		Chip:     s.config.ChipKind,
		Version:  version.Version,
	})
}

// LogHTTPRequestDetails logs the upgrade request at debug level
func LogHTTPRequestDetails(req *http.Request, remoteAddr string) {
	headers := make(map[string]string)
	for key, values := range req.Header {
		headers[key] = strings.Join(values, ", ")
	}

	logging.Debug("WebSocket upgrade request details",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("host", req.Host),
		zap.String("sec_websocket_version", req.Header.Get("Sec-WebSocket-Version")),
		zap.String("user_agent", req.Header.Get("User-Agent")),
		zap.Any("headers", headers),
	)
}
