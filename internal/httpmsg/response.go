package httpmsg

import (
	"bytes"
	"strconv"
	"time"
)

const crlf = "\r\n"

// Reported in the Server header. Overridable at link time with
// -ldflags "-X github.com/f4ah6o/minihttpd/internal/httpmsg.ServerVersion=...".
var (
	// ServerName is the product token of the Server header.
	ServerName = "minihttpd"
	// ServerVersion follows ServerName after a slash.
	ServerVersion = "0.1.0"
)

// now is the clock used for the Date header. Tests replace it.
var now = time.Now

// Response is built once per request and serialized once.
type Response struct {
	Status      Status
	ContentType ContentType
	Body        []byte
}

// NewResponse returns a response with the given parts.
func NewResponse(status Status, ctype ContentType, body []byte) *Response {
	return &Response{Status: status, ContentType: ctype, Body: body}
}

// Success returns a 200 response.
func Success(ctype ContentType, body []byte) *Response {
	return NewResponse(StatusOK, ctype, body)
}

// Error returns a plain-text response carrying message as its body.
func Error(status Status, message string) *Response {
	return NewResponse(status, ContentPlainText, []byte(message))
}

// WithoutBody returns a copy of r with an empty body, as sent for HEAD.
func (r *Response) WithoutBody() *Response {
	return &Response{Status: r.Status, ContentType: r.ContentType, Body: []byte{}}
}

// Serialize renders r as the bytes written to the peer: status line,
// Server, Date, Content-Type and Content-Length headers, a blank line, and
// the body. Content-Length is always len(r.Body).
func (r *Response) Serialize() []byte {
	var buf bytes.Buffer
	buf.Grow(128 + len(r.Body))

	buf.WriteString("HTTP/1.0 " + r.Status.String() + crlf)
	buf.WriteString("Server: " + ServerName + "/" + ServerVersion + crlf)
	buf.WriteString("Date: " + now().Format(time.RFC1123) + crlf)
	buf.WriteString("Content-Type: " + string(r.ContentType) + crlf)
	buf.WriteString("Content-Length: " + strconv.Itoa(len(r.Body)) + crlf)
	buf.WriteString(crlf)
	buf.Write(r.Body)
	return buf.Bytes()
}
