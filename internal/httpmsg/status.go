// Package httpmsg models the HTTP/1.0 messages the server understands:
// the status registry, content types, request parsing and response
// serialization.
package httpmsg

import "strconv"

// Status is a numeric status code paired with its reason phrase.
// Only the values declared in this package exist; callers never build their own.
type Status struct {
	Code   uint16
	Reason string
}

var (
	// StatusOK is sent for a served file or listing.
	StatusOK = Status{200, "OK"}
	// StatusNoContent is registered for completeness; no handler emits it.
	StatusNoContent = Status{204, "No Content"}
	// StatusBadRequest is sent for a malformed or oversized request head.
	StatusBadRequest = Status{400, "Bad Request"}
	// StatusForbidden is sent for a path that climbs above the served root.
	StatusForbidden = Status{403, "Forbidden"}
	// StatusNotFound is sent when the requested file cannot be opened.
	StatusNotFound = Status{404, "Not Found"}
	// StatusInternalError is sent when reading a file or listing a directory fails.
	StatusInternalError = Status{500, "Internal Server Error"}
	// StatusNotImplemented is sent for methods other than GET and HEAD.
	StatusNotImplemented = Status{501, "Not Implemented"}
)

var statuses = map[uint16]Status{
	200: StatusOK,
	204: StatusNoContent,
	400: StatusBadRequest,
	403: StatusForbidden,
	404: StatusNotFound,
	500: StatusInternalError,
	501: StatusNotImplemented,
}

// LookupStatus returns the registered status for code.
func LookupStatus(code uint16) (Status, bool) {
	s, ok := statuses[code]
	return s, ok
}

// Success reports whether s is a 2xx status.
func (s Status) Success() bool {
	return s.Code >= 200 && s.Code < 300
}

func (s Status) String() string {
	return strconv.Itoa(int(s.Code)) + " " + s.Reason
}

// ContentType is a MIME type the server emits. The dispatcher picks it;
// it is never taken from the request.
type ContentType string

const (
	// ContentPlainText is used for files and error bodies.
	ContentPlainText ContentType = "text/plain"
	// ContentHTML is used for directory listings.
	ContentHTML ContentType = "text/html;charset=utf-8"
	// ContentOctetStream is the generic binary type.
	ContentOctetStream ContentType = "application/octet-stream"
)
