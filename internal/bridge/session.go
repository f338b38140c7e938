package bridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/protocol"
	"github.com/muurk/simplelink/internal/transport"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = protocol.MinFrameSize + protocol.MaxOpLen + protocol.MaxPayloadSize
)

// runSession serves requests from one remote host until it disconnects.
// The chip's event handler belongs to the session while it runs: events
// raised by a poll are written as event frames ahead of the poll response.
func (s *Server) runSession(conn *websocket.Conn, remoteAddr string) error {
	logging.LogConnection(remoteAddr, "websocket_upgraded")

	var events []transport.Event
	s.chip.SetEventHandler(func(ev transport.Event) {
		events = append(events, ev)
	})

	stop := make(chan struct{})
	defer func() {
		close(stop)
		s.chip.SetEventHandler(nil)
		_ = conn.Close()
		logging.LogConnection(remoteAddr, "websocket_closed")
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go keepAlive(conn, stop)

	capture := newCapture(s.config.CaptureDir, remoteAddr)
	messageNum := 0

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Session closed by remote host", zap.String("remote_addr", remoteAddr))
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		messageNum++

		if messageType != websocket.BinaryMessage {
			logging.Warn("Ignoring non-binary message",
				zap.String("remote_addr", remoteAddr),
				zap.Int("message_num", messageNum),
			)
			continue
		}
		capture.save(messageNum, "host->bridge", data)

		req, err := protocol.ParseFrame(data)
		if err != nil {
			logging.Warn("Dropping malformed frame",
				zap.String("remote_addr", remoteAddr),
				zap.Int("message_num", messageNum),
				zap.Error(err),
			)
			continue
		}
		if req.Kind != protocol.KindRequest {
			logging.Warn("Dropping frame that is not a request",
				zap.String("remote_addr", remoteAddr),
				zap.String("frame", req.String()),
			)
			continue
		}
		logging.LogBridgeFrame(remoteAddr, "received", req.Op, data)

		events = events[:0]
		resp := protocol.Dispatch(s.chip, req)

		for _, ev := range events {
			frame := protocol.NewEvent(ev)
			frame.Seq = req.Seq
			if err := writeFrame(conn, remoteAddr, frame, capture, messageNum); err != nil {
				return err
			}
		}
		if err := writeFrame(conn, remoteAddr, resp, capture, messageNum); err != nil {
			return err
		}
	}
}

// keepAlive pings the peer until stop is closed. WriteControl may run
// concurrently with the session's writes.
func keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, remoteAddr string, f *protocol.Frame, capture *capture, messageNum int) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	logging.LogBridgeFrame(remoteAddr, "sent", f.Op, data)
	capture.save(messageNum, "bridge->host", data)
	return nil
}

// FrameCapture is one captured frame, written as a JSON line
type FrameCapture struct {
	Timestamp  time.Time       `json:"timestamp"`
	MessageNum int             `json:"message_num"`
	RemoteAddr string          `json:"remote_addr"`
	Direction  string          `json:"direction"`
	Kind       string          `json:"kind,omitempty"`
	Seq        uint32          `json:"seq"`
	Op         string          `json:"op,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ParseError string          `json:"parse_error,omitempty"`
	RawHex     string          `json:"raw_hex"`
}

// capture appends frames of one session to a JSONL file. A nil capture
// discards everything.
type capture struct {
	filename   string
	remoteAddr string
}

func newCapture(dir, remoteAddr string) *capture {
	if dir == "" {
		return nil
	}
	return &capture{
		filename:   filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", time.Now().Format("20060102-150405"))),
		remoteAddr: remoteAddr,
	}
}

func (c *capture) save(messageNum int, direction string, raw []byte) {
	if c == nil {
		return
	}

	record := FrameCapture{
		Timestamp:  time.Now(),
		MessageNum: messageNum,
		RemoteAddr: c.remoteAddr,
		Direction:  direction,
		RawHex:     hex.EncodeToString(raw),
	}
	if f, err := protocol.ParseFrame(raw); err != nil {
		record.ParseError = err.Error()
	} else {
		record.Kind = f.Kind.String()
		record.Seq = f.Seq
		record.Op = f.Op
		if json.Valid(f.Payload) {
			record.Payload = f.Payload
		}
	}

	file, err := os.OpenFile(c.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logging.Error("Failed to open capture file",
			zap.String("filename", c.filename),
			zap.Error(err),
		)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := json.Marshal(record)
	if err != nil {
		logging.Error("Failed to marshal frame capture", zap.Error(err))
		return
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		logging.Error("Failed to write to capture file",
			zap.String("filename", c.filename),
			zap.Error(err),
		)
	}
}
