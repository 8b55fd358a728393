package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/f4ah6o/minihttpd/internal/dispatch"
	"github.com/f4ah6o/minihttpd/internal/fsys"
	"github.com/f4ah6o/minihttpd/internal/httpmsg"
)

type recordingHandler struct {
	mu   sync.Mutex
	got  [][]byte
	resp *httpmsg.Response
	err  error
}

func (h *recordingHandler) Handle(raw []byte) (*httpmsg.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, append([]byte(nil), raw...))
	return h.resp, h.err
}

func (h *recordingHandler) requests() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.got
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// start serves s on a loopback port until the test ends.
func start(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	})
	return ln.Addr().String()
}

// roundTrip sends payload and returns everything the server writes before closing.
func roundTrip(t *testing.T, addr, payload string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, payload); err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return string(out)
}

func TestServeEndToEnd(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "readme.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	addr := start(t, New(dispatch.New(fsys.New(root))))

	tests := []struct {
		name       string
		payload    string
		statusLine string
		body       string
		emptyBody  bool
	}{
		{"File", "GET /readme.txt HTTP/1.0\r\nHost: x\r\n\r\n", "HTTP/1.0 200 OK", "hello", false},
		{"Bare newlines", "GET /readme.txt HTTP/1.0\n\n", "HTTP/1.0 200 OK", "hello", false},
		{"Head", "HEAD /readme.txt HTTP/1.0\r\n\r\n", "HTTP/1.0 200 OK", "", true},
		{"Missing", "GET /missing.txt HTTP/1.0\r\n\r\n", "HTTP/1.0 404 Not Found", "", false},
		{"Put", "PUT /x HTTP/1.0\r\n\r\n", "HTTP/1.0 501 Not Implemented", "", false},
		{"Bad", "BAD\r\n\r\n", "HTTP/1.0 400 Bad Request", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := roundTrip(t, addr, tt.payload)
			if !strings.HasPrefix(out, tt.statusLine+"\r\n") {
				t.Fatalf("response = %q, want status line %q", out, tt.statusLine)
			}
			if !strings.Contains(out, "\r\nServer: "+httpmsg.ServerName+"/") {
				t.Errorf("response %q has no Server header", out)
			}
			_, body, ok := strings.Cut(out, "\r\n\r\n")
			if !ok {
				t.Fatalf("response %q has no blank line", out)
			}
			if tt.body != "" && body != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
			if tt.emptyBody && body != "" {
				t.Errorf("HEAD body = %q, want empty", body)
			}
		})
	}
}

func TestServePassesRequestHeadOnly(t *testing.T) {
	h := &recordingHandler{resp: httpmsg.Success(httpmsg.ContentPlainText, []byte("ok"))}
	addr := start(t, New(h))

	roundTrip(t, addr, "POST /x HTTP/1.0\r\nContent-Length: 4\r\n\r\nbody")

	got := h.requests()
	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if want := "POST /x HTTP/1.0\r\nContent-Length: 4\r\n\r\n"; string(got[0]) != want {
		t.Errorf("handler got %q, want %q", got[0], want)
	}
}

func TestServeDropsConnection(t *testing.T) {
	tests := []struct {
		name    string
		handler *recordingHandler
		payload string
		calls   int
	}{
		{
			name:    "Handler refuses",
			handler: &recordingHandler{err: dispatch.ErrUndecodable},
			payload: "GET /\xff HTTP/1.0\r\n\r\n",
			calls:   1,
		},
		{
			name:    "Timeout before blank line",
			handler: &recordingHandler{resp: httpmsg.Success(httpmsg.ContentPlainText, nil)},
			payload: "GET / HTTP/1.0\r\n",
			calls:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.handler)
			s.ReadTimeout = 50 * time.Millisecond
			addr := start(t, s)

			if out := roundTrip(t, addr, tt.payload); out != "" {
				t.Errorf("response = %q, want none", out)
			}
			if n := len(tt.handler.requests()); n != tt.calls {
				t.Errorf("handler called %d times, want %d", n, tt.calls)
			}
		})
	}
}

func TestServeRejectsOversizedHead(t *testing.T) {
	h := &recordingHandler{}
	s := New(h)
	s.MaxRequestBytes = 32
	addr := start(t, s)

	out := roundTrip(t, addr, "GET /"+strings.Repeat("a", 100)+" HTTP/1.0\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.0 400 Bad Request\r\n") {
		t.Errorf("response = %q, want 400", out)
	}
	if n := len(h.requests()); n != 0 {
		t.Errorf("handler called %d times, want 0", n)
	}
}

func TestServeLogsAccess(t *testing.T) {
	var buf syncBuffer
	s := New(&recordingHandler{resp: httpmsg.Error(httpmsg.StatusNotFound, "nope")})
	s.Logger = zerolog.New(&buf)
	addr := start(t, s)

	roundTrip(t, addr, "GET /gone HTTP/1.0\r\n\r\n")

	out := buf.String()
	for _, want := range []string{`"request":"GET /gone HTTP/1.0"`, `"status":404`, `"bytes":4`} {
		if !strings.Contains(out, want) {
			t.Errorf("access log %q is missing %s", out, want)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&recordingHandler{}).Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	if _, err := net.Dial("tcp", ln.Addr().String()); err == nil {
		t.Error("listener still accepting after cancel")
	}
}

func TestServeClosedListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ln.Close()

	err = New(&recordingHandler{}).Serve(context.Background(), ln)
	if !errors.Is(err, net.ErrClosed) {
		t.Errorf("Serve() error = %v, want %v", err, net.ErrClosed)
	}
}

// flakyListener fails Accept with err a fixed number of times, then reports
// itself closed.
type flakyListener struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    []time.Time
	closed   chan struct{}
	once     sync.Once
}

func newFlakyListener(failures int) *flakyListener {
	return &flakyListener{
		failures: failures,
		err:      errors.New("too many open files"),
		closed:   make(chan struct{}),
	}
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, time.Now())
	if l.failures > 0 {
		l.failures--
		return nil, l.err
	}
	return nil, net.ErrClosed
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func (l *flakyListener) acceptTimes() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Time(nil), l.calls...)
}

func TestServeBacksOffOnAcceptErrors(t *testing.T) {
	var buf syncBuffer
	s := New(&recordingHandler{})
	s.Logger = zerolog.New(&buf)
	ln := newFlakyListener(3)

	err := s.Serve(context.Background(), ln)
	if !errors.Is(err, net.ErrClosed) {
		t.Fatalf("Serve() error = %v, want %v", err, net.ErrClosed)
	}

	if got := strings.Count(buf.String(), `"message":"accept failed"`); got != 3 {
		t.Errorf("accept failures logged = %d, want 3", got)
	}
	for _, want := range []string{`"retry_in":5`, `"retry_in":10`, `"retry_in":20`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log %q is missing %s", buf.String(), want)
		}
	}

	times := ln.acceptTimes()
	if len(times) != 4 {
		t.Fatalf("Accept called %d times, want 4", len(times))
	}
	for i, want := range []time.Duration{5, 10, 20} {
		want *= time.Millisecond
		if gap := times[i+1].Sub(times[i]); gap < want {
			t.Errorf("retry %d came after %v, want at least %v", i+1, gap, want)
		}
	}
}

func TestServeCancelDuringBackoff(t *testing.T) {
	ln := newFlakyListener(1000)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&recordingHandler{}).Serve(ctx, ln) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	select {
	case <-ln.closed:
	default:
		t.Error("listener not closed after cancel")
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, minAcceptBackoff},
		{minAcceptBackoff, 2 * minAcceptBackoff},
		{600 * time.Millisecond, maxAcceptBackoff},
		{maxAcceptBackoff, maxAcceptBackoff},
	}

	for _, tt := range tests {
		if got := nextBackoff(tt.in); got != tt.want {
			t.Errorf("nextBackoff(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHeadEnd(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"GET / HTTP/1.0\r\n\r\n", 18},
		{"GET / HTTP/1.0\n\n", 16},
		{"GET / HTTP/1.0\r\n\r\nbody", 18},
		{"GET / HTTP/1.0\r\n", -1},
		{"", -1},
	}

	for _, tt := range tests {
		if got := headEnd([]byte(tt.in)); got != tt.want {
			t.Errorf("headEnd(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRequestLine(t *testing.T) {
	if got := requestLine([]byte("GET /a HTTP/1.0\r\nHost: x\r\n\r\n")); got != "GET /a HTTP/1.0" {
		t.Errorf("requestLine() = %q", got)
	}
	if got := requestLine([]byte("GET /\xff HTTP/1.0\r\n")); !strings.HasPrefix(got, "GET /") || strings.Contains(got, "\xff") {
		t.Errorf("requestLine() = %q, want invalid bytes replaced", got)
	}
}
