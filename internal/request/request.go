// Package request parses raw HTTP/1.x request bytes into a Request.
package request

import (
	"bytes"
	"strconv"
	"strings"

	"httpd/internal/errors"
)

// Method is the request method. Only GET and POST are served.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Recognized header names. Lookup is case-sensitive, as sent by the client.
const (
	HeaderAcceptEncoding = "Accept-Encoding"
	HeaderConnection     = "Connection"
	HeaderContentType    = "Content-Type"
	HeaderContentLength  = "Content-Length"
	HeaderUserAgent      = "User-Agent"
	HeaderHost           = "Host"
)

var (
	// ErrMalformedRequest is matched (via errors.Is) by every parse failure.
	ErrMalformedRequest = errors.New(errors.MalformedRequest, "malformed request", nil)
	// ErrUnsupportedMethod is returned for methods other than GET and POST.
	ErrUnsupportedMethod = errors.New(errors.UnsupportedMethod, "unsupported method", nil)
)

// Request is one parsed request. It is not modified after Parse returns.
type Request struct {
	Method  Method
	Path    string // first target segment, always starting with "/"
	Subpath string // the segment following Path, or ""
	Target  string // raw request target
	Version string
	Headers map[string]string
	Body    []byte
}

// Header returns the value of the named header and whether it was sent.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.Headers[name]
	return v, ok
}

// ContentLength returns the declared body length, or -1 if absent or invalid.
func (r *Request) ContentLength() int {
	return contentLength(r.Headers)
}

// Parse builds a Request from everything read off the socket for one message.
//
// The request line must hold exactly three whitespace separated tokens. Header
// lines are scanned once into a name map, so their order does not matter. Bytes
// after the first empty line form the body, cut to Content-Length when one is sent.
// When the method is unknown, Parse returns the otherwise complete Request along
// with ErrUnsupportedMethod so the caller can still echo the version.
func Parse(buf []byte) (*Request, error) {
	if len(buf) == 0 {
		return nil, errors.New(errors.MalformedRequest, "empty request", nil)
	}

	head, body, _ := bytes.Cut(buf, []byte("\r\n\r\n"))
	lines := strings.Split(string(head), "\r\n")

	tokens := strings.Fields(lines[0])
	if len(tokens) != 3 {
		return nil, errors.New(errors.MalformedRequest, "invalid request line: "+strconv.Quote(lines[0]), nil)
	}

	req := &Request{
		Target:  tokens[1],
		Version: tokens[2],
		Headers: parseHeaders(lines[1:]),
	}
	req.Path, req.Subpath = splitTarget(tokens[1])

	req.Body = body
	if n := req.ContentLength(); n >= 0 && n < len(body) {
		req.Body = body[:n]
	}

	switch Method(tokens[0]) {
	case MethodGet, MethodPost:
		req.Method = Method(tokens[0])
	default:
		req.Method = Method(tokens[0])
		return req, errors.New(errors.UnsupportedMethod, "unsupported method "+strconv.Quote(tokens[0]), nil)
	}

	return req, nil
}

// Headers scans the header lines of buf without validating the request line.
// It lets a caller honor Connection on a request Parse rejected.
func Headers(buf []byte) map[string]string {
	head, _, _ := bytes.Cut(buf, []byte("\r\n\r\n"))
	lines := strings.Split(string(head), "\r\n")
	return parseHeaders(lines[1:])
}

// HeaderEnd returns the offset of the first byte after the header block, or -1
// when buf does not yet contain the terminating empty line.
func HeaderEnd(buf []byte) int {
	i := bytes.Index(buf, []byte("\r\n\r\n"))
	if i < 0 {
		return -1
	}
	return i + 4
}

// Remaining reports how many more body bytes buf needs before it holds the whole
// body declared by Content-Length. It is 0 while the header block is incomplete,
// when no length is declared, or once the body has fully arrived.
func Remaining(buf []byte) int {
	end := HeaderEnd(buf)
	if end < 0 {
		return 0
	}

	lines := strings.Split(string(buf[:end-4]), "\r\n")
	n := contentLength(parseHeaders(lines[1:]))
	if n < 0 {
		return 0
	}
	if missing := n - (len(buf) - end); missing > 0 {
		return missing
	}
	return 0
}

func contentLength(headers map[string]string) int {
	v, ok := headers[HeaderContentLength]
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func parseHeaders(lines []string) map[string]string {
	headers := make(map[string]string, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			continue
		}
		// first occurrence wins
		if _, seen := headers[name]; seen {
			continue
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers
}

// splitTarget maps "/echo/abc" to ("/echo", "abc") and "" or "/" to ("/", "").
func splitTarget(target string) (path, subpath string) {
	segments := make([]string, 0, 2)
	for _, s := range strings.Split(target, "/") {
		if s == "" {
			continue
		}
		segments = append(segments, s)
		if len(segments) == 2 {
			break
		}
	}

	switch len(segments) {
	case 0:
		return "/", ""
	case 1:
		return "/" + segments[0], ""
	default:
		return "/" + segments[0], segments[1]
	}
}
