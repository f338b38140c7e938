package bridge

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/simplelink/internal/protocol"
	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/transport/sim"
)

func startBridge(t *testing.T, cfg *Config, chip *sim.Chip) (*Server, string) {
	t.Helper()
	srv, err := New(cfg, chip)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// exchange sends one request and returns every frame up to its response.
func exchange(t *testing.T, conn *websocket.Conn, op string, args any) []*protocol.Frame {
	t.Helper()
	req, err := protocol.NewRequest(op, args)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := req.MarshalBinary()
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("write error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frames []*protocol.Frame
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read error = %v", err)
		}
		f, err := protocol.ParseFrame(msg)
		if err != nil {
			t.Fatalf("ParseFrame() error = %v", err)
		}
		if f.Seq != req.Seq {
			t.Fatalf("frame %v carries seq %d, want %d", f, f.Seq, req.Seq)
		}
		frames = append(frames, f)
		if f.Kind == protocol.KindResponse {
			return frames
		}
	}
}

func TestSessionEventsPrecedePollResponse(t *testing.T) {
	chip := sim.New(sim.Options{AccessPoints: []sim.AccessPoint{{SSID: "open"}}})
	_, url := startBridge(t, &Config{}, chip)
	conn := dial(t, url+"/bridge")

	exchange(t, conn, transport.OpStart, protocol.StartArgs{})
	exchange(t, conn, transport.OpSetEventMask, protocol.EventMaskArgs{Mask: transport.DefaultEventMask})
	connect := exchange(t, conn, transport.OpConnect, protocol.ConnectArgs{SSID: "open"})
	if len(connect) != 1 {
		t.Fatalf("connect produced %d frames, want only the response", len(connect))
	}

	frames := exchange(t, conn, transport.OpPoll, nil)
	var kinds []transport.EventKind
	for _, f := range frames[:len(frames)-1] {
		ev, err := f.DecodeEvent()
		if err != nil {
			t.Fatalf("DecodeEvent() error = %v", err)
		}
		kinds = append(kinds, ev.Kind)
	}
	want := []transport.EventKind{transport.EventLinkConnected, transport.EventDHCPAcquired}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, kinds[i], want[i])
		}
	}
	if err := frames[len(frames)-1].DecodeResponse(nil); err != nil {
		t.Errorf("poll response error = %v", err)
	}
}

func TestSessionReportsChipStatus(t *testing.T) {
	chip := sim.New(sim.Options{})
	_, url := startBridge(t, &Config{}, chip)
	conn := dial(t, url+"/bridge")

	chip.Fail(transport.OpStatus, -9, 1)
	frames := exchange(t, conn, transport.OpStatus, nil)
	if err := frames[0].DecodeResponse(nil); transport.StatusCode(err) != -9 {
		t.Errorf("status error = %v, want chip status -9", err)
	}

	var res protocol.StatusResult
	frames = exchange(t, conn, transport.OpStatus, nil)
	if err := frames[0].DecodeResponse(&res); err != nil || res.Status != transport.StatusDisconnected {
		t.Errorf("status = %v, %v, want disconnected", res.Status, err)
	}
}

func TestSessionSkipsMalformedFrames(t *testing.T) {
	chip := sim.New(sim.Options{})
	_, url := startBridge(t, &Config{}, chip)
	conn := dial(t, url+"/bridge")

	conn.WriteMessage(websocket.BinaryMessage, []byte{0x7e, 0x01, 0x02})
	conn.WriteMessage(websocket.TextMessage, []byte("hello"))

	frames := exchange(t, conn, transport.OpStart, protocol.StartArgs{})
	if err := frames[0].DecodeResponse(nil); err != nil {
		t.Fatalf("start after garbage error = %v", err)
	}
	if !chip.Started() {
		t.Error("chip not started")
	}
}

func TestSecondHostRefused(t *testing.T) {
	chip := sim.New(sim.Options{})
	srv, url := startBridge(t, &Config{}, chip)
	dial(t, url+"/bridge")

	_, resp, err := websocket.DefaultDialer.Dial(url+"/bridge", nil)
	if err == nil {
		t.Fatal("second Dial() succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("second Dial() response = %v, want 409", resp)
	}
	if n := srv.ActiveSessions(); n != 1 {
		t.Errorf("ActiveSessions() = %d, want 1", n)
	}
}

func TestSessionReleasesChip(t *testing.T) {
	chip := sim.New(sim.Options{})
	srv, url := startBridge(t, &Config{}, chip)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/bridge", nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for srv.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not released after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
	dial(t, url+"/bridge")
}

func TestHealth(t *testing.T) {
	chip := sim.New(sim.Options{})
	_, url := startBridge(t, &Config{ChipKind: "sim"}, chip)
	dial(t, url+"/bridge")

	resp, err := http.Get("http" + strings.TrimPrefix(url, "ws") + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if h.Status != "ok" || h.Sessions != 1 || h.Chip != "sim" {
		t.Errorf("health = %+v", h)
	}
}

func TestCapture(t *testing.T) {
	dir := t.TempDir()
	chip := sim.New(sim.Options{})
	_, url := startBridge(t, &Config{CaptureDir: dir}, chip)
	conn := dial(t, url+"/bridge")

	exchange(t, conn, transport.OpStart, protocol.StartArgs{Patch: transport.PatchHost})
	// The response is captured after it is written; a second exchange
	// orders it before the next request.
	exchange(t, conn, transport.OpStatus, nil)

	files, err := filepath.Glob(filepath.Join(dir, "capture-*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("capture files = %v, %v", files, err)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var records []FrameCapture
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec FrameCapture
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad capture line %q: %v", sc.Text(), err)
		}
		records = append(records, rec)
	}
	if len(records) < 3 {
		t.Fatalf("captured %d frames, want at least 3", len(records))
	}
	if records[0].Direction != "host->bridge" || records[0].Kind != "request" || records[0].Op != transport.OpStart {
		t.Errorf("request capture = %+v", records[0])
	}
	if string(records[0].Payload) != `{"patch":1}` {
		t.Errorf("request payload = %s", records[0].Payload)
	}
	if records[1].Direction != "bridge->host" || records[1].Kind != "response" || records[1].Seq != records[0].Seq {
		t.Errorf("response capture = %+v", records[1])
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(&Config{}, nil); err == nil {
		t.Error("New() accepted a nil chip")
	}
	if _, err := New(&Config{CertPath: "cert.pem"}, sim.New(sim.Options{})); err == nil {
		t.Error("New() accepted a certificate without a key")
	}
	cfg := &Config{}
	if _, err := New(cfg, sim.New(sim.Options{})); err != nil || cfg.Path != "/bridge" {
		t.Errorf("New() = %v, path %q", err, cfg.Path)
	}
}
