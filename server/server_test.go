// File: server/server_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-h3/api"
	"github.com/momentics/hioload-h3/control"
	"github.com/momentics/hioload-h3/protocol"
	"github.com/momentics/hioload-h3/server"
)

const waitFor = 2 * time.Second

// echoHandler returns DATA frames to their sender and records session events.
type echoHandler struct {
	opened chan *server.Session
	closed chan error
}

func newEchoHandler() *echoHandler {
	return &echoHandler{
		opened: make(chan *server.Session, 8),
		closed: make(chan error, 8),
	}
}

type echoListener struct {
	protocol.NopListener
	sess *server.Session
}

func (l *echoListener) OnData(_ uint64, f *protocol.DataFrame) {
	_ = l.sess.Send(protocol.AppendFrame(nil, protocol.FrameData, f.Data))
}

func (h *echoHandler) OpenSession(s *server.Session) protocol.FrameListener {
	h.opened <- s
	return &echoListener{sess: s}
}

func (h *echoHandler) CloseSession(_ *server.Session, cause error) {
	h.closed <- cause
}

type fakeClock struct {
	ns atomic.Int64
}

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.ns.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.ns.Load()) }

func (c *fakeClock) Advance(d time.Duration) { c.ns.Add(int64(d)) }

func testConfig() control.Config {
	cfg := control.DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.Workers = 2
	cfg.IdleTimeout = control.Duration{Duration: time.Hour}
	return cfg
}

func startServer(t *testing.T, h server.Handler, opts ...server.ServerOption) *server.Server {
	t.Helper()
	s, err := server.NewServer(testConfig(), h, opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		if errors.Is(err, api.ErrNotSupported) {
			t.Skip("datagram sockets not supported on this platform")
		}
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func dial(t *testing.T, s *server.Server) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(s.LocalAddr()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return buf[:n]
}

func TestServerEchoesDataFrames(t *testing.T) {
	h := newEchoHandler()
	s := startServer(t, h)
	conn := dial(t, s)

	frame := protocol.AppendFrame(nil, protocol.FrameData, []byte("hello datagram"))
	if _, err := conn.Write(frame); err != nil {
		t.Fatal(err)
	}
	if got := readReply(t, conn); !bytes.Equal(got, frame) {
		t.Fatalf("reply %x, want %x", got, frame)
	}
	if s.Sessions() != 1 {
		t.Fatalf("sessions %d", s.Sessions())
	}
}

func TestServerReassemblesFramesAcrossDatagrams(t *testing.T) {
	h := newEchoHandler()
	s := startServer(t, h)
	conn := dial(t, s)

	frame := protocol.AppendFrame(nil, protocol.FrameData, []byte("split over two datagrams"))
	if _, err := conn.Write(frame[:5]); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.opened:
	case <-time.After(waitFor):
		t.Fatal("session not opened")
	}
	if _, err := conn.Write(frame[5:]); err != nil {
		t.Fatal(err)
	}
	if got := readReply(t, conn); !bytes.Equal(got, frame) {
		t.Fatalf("reply %x, want %x", got, frame)
	}
}

func TestServerClosesFailedSession(t *testing.T) {
	h := newEchoHandler()
	s := startServer(t, h)
	conn := dial(t, s)

	// setting 0x2 is reserved for HTTP/2 and fails the session
	bad := protocol.AppendSettings(nil, protocol.Setting{ID: 0x2, Value: 1})
	if _, err := conn.Write(bad); err != nil {
		t.Fatal(err)
	}
	select {
	case cause := <-h.closed:
		if !errors.Is(cause, server.ErrSessionFailed) {
			t.Fatalf("cause %v", cause)
		}
		var f *protocol.Failure
		if !errors.As(cause, &f) || f.Code != protocol.ErrorSettings || f.Reason != "reserved_setting" {
			t.Fatalf("failure %v", cause)
		}
	case <-time.After(waitFor):
		t.Fatal("session not closed")
	}
	if s.Sessions() != 0 {
		t.Fatalf("sessions %d", s.Sessions())
	}

	// the peer starts over with a fresh session
	frame := protocol.AppendFrame(nil, protocol.FrameData, []byte("again"))
	if _, err := conn.Write(frame); err != nil {
		t.Fatal(err)
	}
	if got := readReply(t, conn); !bytes.Equal(got, frame) {
		t.Fatalf("reply %x", got)
	}
}

// panickyHandler panics in OpenSession for the first session and in every
// CloseSession, then echoes like echoHandler.
type panickyHandler struct {
	opens atomic.Int32
}

func (h *panickyHandler) OpenSession(s *server.Session) protocol.FrameListener {
	if h.opens.Add(1) == 1 {
		panic("open session")
	}
	return &echoListener{sess: s}
}

func (h *panickyHandler) CloseSession(*server.Session, error) {
	panic("close session")
}

func TestServerSurvivesHandlerPanics(t *testing.T) {
	s := startServer(t, &panickyHandler{})
	conn := dial(t, s)

	// the first datagram is dropped with its rejected session
	frame := protocol.AppendFrame(nil, protocol.FrameData, []byte("after panic"))
	for i := 0; i < 2; i++ {
		if _, err := conn.Write(frame); err != nil {
			t.Fatal(err)
		}
	}
	if got := readReply(t, conn); !bytes.Equal(got, frame) {
		t.Fatalf("reply %x, want %x", got, frame)
	}

	// a session failure runs the panicking CloseSession
	bad := protocol.AppendSettings(nil, protocol.Setting{ID: 0x2, Value: 1})
	if _, err := conn.Write(bad); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatal(err)
	}
	if got := readReply(t, conn); !bytes.Equal(got, frame) {
		t.Fatalf("reply %x, want %x", got, frame)
	}
	if s.Sessions() != 1 {
		t.Fatalf("sessions %d", s.Sessions())
	}
}

// selfDescribingListener formats its own session while the frame is delivered.
type selfDescribingListener struct {
	protocol.NopListener
	sess *server.Session
}

func (l *selfDescribingListener) OnData(_ uint64, f *protocol.DataFrame) {
	desc := fmt.Sprint(l.sess)
	_ = l.sess.Send(protocol.AppendFrame(nil, protocol.FrameData, []byte(desc)))
}

func TestListenerMayFormatItsSession(t *testing.T) {
	s := startServer(t, server.HandlerFunc(func(sess *server.Session) protocol.FrameListener {
		return &selfDescribingListener{sess: sess}
	}))
	conn := dial(t, s)
	if _, err := conn.Write(protocol.AppendFrame(nil, protocol.FrameData, []byte("who"))); err != nil {
		t.Fatal(err)
	}
	got := readReply(t, conn)
	if !bytes.Contains(got, []byte("Session@")) {
		t.Fatalf("reply %q", got)
	}
}

func TestEvictIdleSessions(t *testing.T) {
	clock := newFakeClock()
	h := newEchoHandler()
	s := startServer(t, h, server.WithClock(clock.Now))
	conn := dial(t, s)

	if _, err := conn.Write(protocol.AppendFrame(nil, protocol.FrameData, []byte("x"))); err != nil {
		t.Fatal(err)
	}
	readReply(t, conn)

	if n := s.EvictIdle(clock.Now()); n != 0 {
		t.Fatalf("evicted %d active sessions", n)
	}
	clock.Advance(2 * time.Hour)
	if n := s.EvictIdle(clock.Now()); n != 1 {
		t.Fatalf("evicted %d", n)
	}
	select {
	case cause := <-h.closed:
		if !errors.Is(cause, server.ErrIdleTimeout) || !errors.Is(cause, api.ErrOperationTimeout) {
			t.Fatalf("cause %v", cause)
		}
	case <-time.After(waitFor):
		t.Fatal("no close notification")
	}
}

func TestAdminHandler(t *testing.T) {
	s := startServer(t, newEchoHandler())
	admin := s.AdminHandler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		admin.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hioload_h3_reactor_endpoints_open 1") {
		t.Fatalf("metrics %d:\n%s", rec.Code, rec.Body.String())
	}
	rec = get("/debug/state")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"sessions"`) {
		t.Fatalf("debug state %d: %s", rec.Code, rec.Body.String())
	}
	if rec = get("/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz %d", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if rec = get("/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz after shutdown %d", rec.Code)
	}
}

func TestShutdownLifecycle(t *testing.T) {
	s := startServer(t, newEchoHandler())
	if err := s.Start(context.Background()); !errors.Is(err, server.ErrAlreadyRunning) {
		t.Fatalf("second Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// Second call to Shutdown should be idempotent
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if err := s.Send(s.LocalAddr(), []byte("late")); !errors.Is(err, api.ErrClosed) {
		t.Fatalf("Send after shutdown: %v", err)
	}
}

func TestNewServerValidates(t *testing.T) {
	if _, err := server.NewServer(testConfig(), nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("nil handler: %v", err)
	}
	cfg := testConfig()
	cfg.QueueSize = 0
	if _, err := server.NewServer(cfg, newEchoHandler()); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("invalid config: %v", err)
	}
	s, err := server.NewServer(testConfig(), newEchoHandler())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Shutdown(context.Background()); !errors.Is(err, server.ErrNotRunning) {
		t.Fatalf("Shutdown before Start: %v", err)
	}
}

func TestEchoHandlerSettingsAndGoAway(t *testing.T) {
	s := startServer(t, server.NewEchoHandler(protocol.Setting{ID: protocol.SettingQPACKBlockedStreams, Value: 16}))
	conn := dial(t, s)

	if _, err := conn.Write(protocol.AppendSettings(nil)); err != nil {
		t.Fatal(err)
	}
	want := protocol.AppendSettings(nil, protocol.Setting{ID: protocol.SettingQPACKBlockedStreams, Value: 16})
	if got := readReply(t, conn); !bytes.Equal(got, want) {
		t.Fatalf("settings reply %x, want %x", got, want)
	}

	headers := protocol.AppendFrame(nil, protocol.FrameHeaders, []byte{0x00, 0x00, 0xd1})
	if _, err := conn.Write(headers); err != nil {
		t.Fatal(err)
	}
	if got := readReply(t, conn); !bytes.Equal(got, headers) {
		t.Fatalf("headers reply %x", got)
	}

	// an HTTP/2 PING type is a session failure answered with GOAWAY
	if _, err := conn.Write(protocol.AppendFrame(nil, protocol.FrameType(0x06), nil)); err != nil {
		t.Fatal(err)
	}
	if got := readReply(t, conn); !bytes.Equal(got, protocol.AppendGoAway(nil, 0)) {
		t.Fatalf("goaway reply %x", got)
	}
}
