package httpmsg

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest is returned when the request line is malformed or
	// the request has too few lines.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnsupportedMethod is returned when the method token is not one the
	// server recognizes.
	ErrUnsupportedMethod = errors.New("unsupported method")
)

// Method is the request method. The zero value is MethodUnrecognized.
type Method int

const (
	// MethodUnrecognized stands for any token the server does not know.
	MethodUnrecognized Method = iota
	// MethodGet retrieves a file or a directory listing.
	MethodGet
	// MethodHead is GET without a response body.
	MethodHead
	// MethodPut is recognized but answered with 501.
	MethodPut
	// MethodPost is recognized but answered with 501.
	MethodPost
)

var methodTokens = map[string]Method{
	"GET":  MethodGet,
	"HEAD": MethodHead,
	"PUT":  MethodPut,
	"POST": MethodPost,
}

// ParseMethod maps a request-line token to a Method. Matching is
// case-sensitive, as methods are on the wire.
func ParseMethod(token string) Method {
	return methodTokens[token]
}

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodHead:
		return "HEAD"
	case MethodPut:
		return "PUT"
	case MethodPost:
		return "POST"
	}
	return "UNRECOGNIZED"
}

// Header maps header names, as received, to trimmed values.
// Unlike http.Header, names are not canonicalized and hold one value.
type Header map[string]string

// Request is a parsed request head. It is owned by the call that parsed it.
type Request struct {
	Method  Method
	Path    string // server-relative, always starts with "/"
	Version string
	Headers Header
}

// ParseRequest parses the text of a request head, everything received up
// to and including the terminating blank line.
//
// The request line must carry method, path and version separated by single
// spaces, and the text must have at least three lines. Header lines without
// exactly one colon are skipped. The path is kept verbatim: no decoding and
// no normalization happen here.
func ParseRequest(text string) (*Request, error) {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: only %d lines", ErrInvalidRequest, len(lines))
	}

	fields := strings.Split(lines[0], " ")
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: request line %q", ErrInvalidRequest, lines[0])
	}
	method := ParseMethod(fields[0])
	if method == MethodUnrecognized {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, fields[0])
	}

	if !strings.HasPrefix(fields[1], "/") {
		return nil, fmt.Errorf("%w: path %q is not server-relative", ErrInvalidRequest, fields[1])
	}

	headers := make(Header)
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		parts := strings.Split(line, ":")
		if len(parts) != 2 {
			continue
		}
		headers[parts[0]] = strings.TrimSpace(parts[1])
	}

	return &Request{
		Method:  method,
		Path:    fields[1],
		Version: fields[2],
		Headers: headers,
	}, nil
}
