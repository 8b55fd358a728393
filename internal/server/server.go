// Package server accepts TCP connections and exchanges one HTTP/1.0
// request and response on each, one connection at a time.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/f4ah6o/minihttpd/internal/httpmsg"
)

const (
	defaultReadTimeout     = time.Second
	defaultMaxRequestBytes = 8 << 10
	readChunk              = 1024
	maxLoggedRequestLine   = 256

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

var errTooLarge = errors.New("request head too large")

// Handler turns a raw request head into a response. A nil response with an
// error means nothing should be sent.
type Handler interface {
	Handle(raw []byte) (*httpmsg.Response, error)
}

// Server serves Handler over a listener.
type Server struct {
	Handler Handler
	Logger  zerolog.Logger
	// ReadTimeout bounds every read of a request head. Zero means one second.
	ReadTimeout time.Duration
	// MaxRequestBytes caps a request head. Zero means 8 KiB.
	MaxRequestBytes int
}

// New returns a Server with a disabled logger and default limits.
func New(h Handler) *Server {
	return &Server{Handler: h, Logger: zerolog.Nop()}
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.Logger.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and handles each to completion before
// accepting the next. It returns nil once ctx is cancelled, closing ln.
// A failed Accept is retried after a delay that doubles up to one second
// and resets on the next accepted connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			backoff = nextBackoff(backoff)
			s.Logger.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		s.serveConn(conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return minAcceptBackoff
	}
	return min(2*d, maxAcceptBackoff)
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	raw, err := s.readRequest(conn)
	if errors.Is(err, errTooLarge) {
		s.respond(conn, remote, raw, httpmsg.Error(httpmsg.StatusBadRequest, "Request head too large."))
		return
	}
	if err != nil {
		s.Logger.Warn().Err(err).Str("remote", remote).Int("received", len(raw)).Msg("dropping connection")
		return
	}

	resp, err := s.Handler.Handle(raw)
	if err != nil {
		s.Logger.Warn().Err(err).Str("remote", remote).Msg("dropping connection")
		return
	}
	s.respond(conn, remote, raw, resp)
}

// readRequest reads until the blank line ending the request head and
// returns everything up to and including it. Each read gets a fresh deadline.
func (s *Server) readRequest(conn net.Conn) ([]byte, error) {
	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	limit := s.MaxRequestBytes
	if limit <= 0 {
		limit = defaultMaxRequestBytes
	}

	var head bytes.Buffer
	buf := make([]byte, readChunk)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return head.Bytes(), err
		}
		n, err := conn.Read(buf)
		head.Write(buf[:n])

		if end := headEnd(head.Bytes()); end >= 0 && end <= limit {
			return head.Bytes()[:end], nil
		}
		if head.Len() > limit {
			return head.Bytes(), errTooLarge
		}
		if err != nil {
			return head.Bytes(), err
		}
	}
}

// headEnd returns the offset just past the first blank line in b, or -1.
func headEnd(b []byte) int {
	crlf := bytes.Index(b, []byte("\r\n\r\n"))
	lf := bytes.Index(b, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf + 4
	case lf >= 0:
		return lf + 2
	}
	return -1
}

func (s *Server) respond(conn net.Conn, remote string, raw []byte, resp *httpmsg.Response) {
	_, err := conn.Write(resp.Serialize())

	ev := s.Logger.Info()
	if err != nil {
		ev = s.Logger.Warn().Err(err)
	}
	ev.Str("remote", remote).
		Str("request", requestLine(raw)).
		Uint16("status", resp.Status.Code).
		Int("bytes", len(resp.Body)).
		Msg("served")
}

func requestLine(raw []byte) string {
	line, _, _ := bytes.Cut(raw, []byte("\n"))
	if len(line) > maxLoggedRequestLine {
		line = line[:maxLoggedRequestLine]
	}
	return strings.ToValidUTF8(strings.TrimSuffix(string(line), "\r"), "�")
}
