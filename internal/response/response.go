// Package response builds and serializes HTTP/1.x responses.
package response

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"httpd/internal/errors"
	"httpd/internal/request"
)

const (
	// DefaultVersion is used when no request line could be parsed.
	DefaultVersion = "HTTP/1.1"

	ContentTypeText        = "text/plain"
	ContentTypeOctetStream = "application/octet-stream"
)

// Field is a single header line.
type Field struct {
	Name  string
	Value string
}

// Response is a status line, an ordered header block and a body.
// Content headers are only written when ContentType is set.
type Response struct {
	Version     string
	Status      int
	Reason      string
	Connection  string // echoed from the request, omitted when empty
	ContentType string
	Gzip        bool
	Extra       []Field
	Body        []byte
}

// Empty returns a response with no body and no content headers.
func Empty(req *request.Request, status int) *Response {
	return &Response{
		Version:    versionOf(req),
		Status:     status,
		Reason:     http.StatusText(status),
		Connection: connectionOf(req),
	}
}

// Text returns a text/plain response. Trailing CR and LF are trimmed from body,
// which is gzip-encoded when the request's Accept-Encoding allows it.
func Text(req *request.Request, status int, body string) *Response {
	return withBody(req, status, []byte(strings.TrimRight(body, "\r\n")), ContentTypeText)
}

// Binary returns a response carrying body untouched apart from gzip negotiation.
func Binary(req *request.Request, status int, body []byte, contentType string) *Response {
	return withBody(req, status, body, contentType)
}

// Error maps err to a status. Server errors carry the error text as body.
func Error(req *request.Request, err error) *Response {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		// never compressed, so a failing encoder cannot recurse here
		r := Empty(req, status)
		r.ContentType = ContentTypeText
		r.Body = []byte(strings.TrimRight(err.Error(), "\r\n"))
		return r
	}
	return Empty(req, status)
}

// Unavailable is written to connections the listener refuses to admit.
func Unavailable(retryAfterSeconds int) *Response {
	r := Empty(nil, http.StatusServiceUnavailable)
	r.Connection = "close"
	if retryAfterSeconds > 0 {
		r.Extra = append(r.Extra, Field{Name: "Retry-After", Value: strconv.Itoa(retryAfterSeconds)})
	}
	return r
}

func withBody(req *request.Request, status int, body []byte, contentType string) *Response {
	r := Empty(req, status)
	r.ContentType = contentType
	r.Body = body

	if req == nil {
		return r
	}
	if enc, ok := req.Header(request.HeaderAcceptEncoding); ok && AcceptsGzip(enc) {
		compressed, err := compress(body)
		if err != nil {
			return Error(req, errors.New(errors.CompressionFailed, "failed to gzip body", err))
		}
		r.Body = compressed
		r.Gzip = true
	}
	return r
}

// AcceptsGzip reports whether an Accept-Encoding value selects gzip.
// A value containing "invalid" opts out even when gzip is also listed.
func AcceptsGzip(acceptEncoding string) bool {
	return strings.Contains(acceptEncoding, "gzip") && !strings.Contains(acceptEncoding, "invalid")
}

// StatusForError maps error codes to HTTP status codes
func StatusForError(err error) int {
	switch errors.CodeOf(err) {
	case errors.MalformedRequest:
		return http.StatusBadRequest // 400
	case errors.RequestTooLarge:
		return http.StatusRequestEntityTooLarge // 413
	case errors.UnsupportedMethod:
		return http.StatusMethodNotAllowed // 405
	case errors.FileNotFound, errors.DirectoryNotConfigured:
		return http.StatusNotFound // 404
	case errors.PathOutsideDirectory:
		return http.StatusForbidden // 403
	case errors.ConnectionRejected:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// Close reports whether the connection must be closed after this response.
func (r *Response) Close() bool {
	return strings.EqualFold(strings.TrimSpace(r.Connection), "close")
}

// Bytes serializes the response into a single contiguous slice.
func (r *Response) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(128 + len(r.Body))

	buf.WriteString(r.Version)
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(r.Status))
	buf.WriteByte(' ')
	buf.WriteString(r.Reason)
	buf.WriteString("\r\n")

	if r.Connection != "" {
		writeField(&buf, "Connection", r.Connection)
	}
	if r.ContentType != "" {
		writeField(&buf, "Content-Type", r.ContentType)
		if r.Gzip {
			writeField(&buf, "Content-Encoding", "gzip")
		}
		// length of the body actually written, after compression
		writeField(&buf, "Content-Length", strconv.Itoa(len(r.Body)))
	}
	for _, f := range r.Extra {
		writeField(&buf, f.Name, f.Value)
	}

	buf.WriteString("\r\n")
	buf.Write(r.Body)
	return buf.Bytes()
}

// WriteTo writes the serialized response to w in one call.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

func writeField(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func versionOf(req *request.Request) string {
	if req == nil || req.Version == "" {
		return DefaultVersion
	}
	return req.Version
}

func connectionOf(req *request.Request) string {
	if req == nil {
		return ""
	}
	v, _ := req.Header(request.HeaderConnection)
	return v
}
