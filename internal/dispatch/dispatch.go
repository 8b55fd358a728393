// Package dispatch turns parsed requests into responses by serving files
// and directory listings from a Filesystem.
package dispatch

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/f4ah6o/minihttpd/internal/fsys"
	"github.com/f4ah6o/minihttpd/internal/httpmsg"
	"github.com/f4ah6o/minihttpd/internal/listing"
)

// ErrUndecodable is returned by Handle when the raw request is not valid
// UTF-8. No response is produced for it.
var ErrUndecodable = errors.New("request is not valid text")

// Filesystem is the storage the dispatcher serves from.
// Errors are classified with fsys.ErrNotFound, fsys.ErrRead and fsys.ErrOutsideRoot.
type Filesystem interface {
	ReadFile(urlPath string) ([]byte, error)
	List(urlPath string) ([]string, error)
}

// Dispatcher routes requests to file retrieval or directory listing.
// It keeps no state between requests.
type Dispatcher struct {
	fs       Filesystem
	renderer listing.Renderer
	log      zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRenderer replaces the directory listing renderer.
func WithRenderer(r listing.Renderer) Option {
	return func(d *Dispatcher) { d.renderer = r }
}

// WithLogger sets the logger used for per-request debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// New returns a Dispatcher serving fs with the HTML listing renderer.
func New(fs Filesystem, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		fs:       fs,
		renderer: listing.HTML,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle parses raw request text and dispatches it. Every parse failure is
// turned into an error response; the only error returned is ErrUndecodable.
func (d *Dispatcher) Handle(raw []byte) (*httpmsg.Response, error) {
	if !utf8.Valid(raw) {
		return nil, ErrUndecodable
	}

	req, err := httpmsg.ParseRequest(string(raw))
	switch {
	case errors.Is(err, httpmsg.ErrUnsupportedMethod):
		return httpmsg.Error(httpmsg.StatusNotImplemented, "Received unsupported HTTP method."), nil
	case err != nil:
		return httpmsg.Error(httpmsg.StatusBadRequest, "Received invalid request."), nil
	}
	return d.Dispatch(req), nil
}

// Dispatch produces the response for req.
//
// GET serves the file or listing named by the path. HEAD does the same and
// then drops the body, whatever the status. Other recognized methods get 501.
func (d *Dispatcher) Dispatch(req *httpmsg.Request) *httpmsg.Response {
	switch req.Method {
	case httpmsg.MethodGet:
		return d.get(req.Path)
	case httpmsg.MethodHead:
		return d.get(req.Path).WithoutBody()
	case httpmsg.MethodPut, httpmsg.MethodPost:
		return httpmsg.Error(httpmsg.StatusNotImplemented,
			"Method "+req.Method.String()+" is not implemented.")
	}
	return httpmsg.Error(httpmsg.StatusNotImplemented, "Received unsupported HTTP method.")
}

func (d *Dispatcher) get(path string) *httpmsg.Response {
	if strings.HasSuffix(path, "/") {
		return d.listDirectory(path)
	}
	return d.retrieveFile(path)
}

func (d *Dispatcher) listDirectory(path string) *httpmsg.Response {
	names, err := d.fs.List(path)
	if errors.Is(err, fsys.ErrOutsideRoot) {
		return httpmsg.Error(httpmsg.StatusForbidden, "Requested path is outside the served directory.")
	}
	if err != nil {
		d.log.Debug().Err(err).Str("path", path).Msg("listing failed")
		return httpmsg.Error(httpmsg.StatusInternalError, "Failed to list files.")
	}
	return httpmsg.Success(httpmsg.ContentHTML, d.renderer.Render(names, path))
}

func (d *Dispatcher) retrieveFile(path string) *httpmsg.Response {
	data, err := d.fs.ReadFile(path)
	switch {
	case errors.Is(err, fsys.ErrOutsideRoot):
		return httpmsg.Error(httpmsg.StatusForbidden, "Requested path is outside the served directory.")
	case errors.Is(err, fsys.ErrNotFound):
		return httpmsg.Error(httpmsg.StatusNotFound, "Could not find file at requested path.")
	case err != nil:
		d.log.Debug().Err(err).Str("path", path).Msg("read failed")
		return httpmsg.Error(httpmsg.StatusInternalError, "Failed to read file.")
	}

	d.log.Debug().Int("bytes", len(data)).Str("path", path).Msg("read file")
	// No extension-to-MIME mapping: every file is served as plain text.
	return httpmsg.Success(httpmsg.ContentPlainText, data)
}
