package router

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"httpd/internal/filestore"
	"httpd/internal/request"
	"httpd/internal/slogutil"
)

func newTestRouter(t *testing.T, dir string) *Router {
	t.Helper()
	return New(filestore.New(dir, false), slogutil.NewDiscardLogger())
}

func dispatch(t *testing.T, r *Router, raw string) string {
	t.Helper()
	req, err := request.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", raw, err)
	}
	return string(r.Dispatch(req).Bytes())
}

func TestDispatch_Scenarios(t *testing.T) {
	r := newTestRouter(t, t.TempDir())

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "root",
			raw:  "GET / HTTP/1.1\r\n\r\n",
			want: "HTTP/1.1 200 OK\r\n\r\n",
		},
		{
			name: "root ignores headers",
			raw:  "GET / HTTP/1.1\r\nUser-Agent: curl\r\nAccept-Encoding: gzip\r\n\r\n",
			want: "HTTP/1.1 200 OK\r\n\r\n",
		},
		{
			name: "root with POST",
			raw:  "POST / HTTP/1.1\r\n\r\n",
			want: "HTTP/1.1 200 OK\r\n\r\n",
		},
		{
			name: "echo",
			raw:  "GET /echo/abc HTTP/1.1\r\n\r\n",
			want: "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 3\r\n\r\nabc",
		},
		{
			name: "echo without text",
			raw:  "GET /echo HTTP/1.1\r\n\r\n",
			want: "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 0\r\n\r\n",
		},
		{
			name: "user agent",
			raw:  "GET /user-agent HTTP/1.1\r\nHost: localhost\r\nUser-Agent: foobar/1.2.3\r\n\r\n",
			want: "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 12\r\n\r\nfoobar/1.2.3",
		},
		{
			name: "user agent missing",
			raw:  "GET /user-agent HTTP/1.1\r\n\r\n",
			want: "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 0\r\n\r\n",
		},
		{
			name: "unknown path",
			raw:  "GET /unknown HTTP/1.1\r\n\r\n",
			want: "HTTP/1.1 404 Not Found\r\n\r\n",
		},
		{
			name: "missing file",
			raw:  "GET /files/missing.txt HTTP/1.1\r\n\r\n",
			want: "HTTP/1.1 404 Not Found\r\n\r\n",
		},
		{
			name: "version echoed",
			raw:  "GET /unknown HTTP/1.0\r\n\r\n",
			want: "HTTP/1.0 404 Not Found\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dispatch(t, r, tt.raw); got != tt.want {
				t.Errorf("Dispatch() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatch_EchoGzip(t *testing.T) {
	r := newTestRouter(t, "")

	req, err := request.Parse([]byte("GET /echo/abc HTTP/1.1\r\nAccept-Encoding: gzip\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	resp := r.Dispatch(req)

	raw := string(resp.Bytes())
	if !strings.Contains(raw, "Content-Encoding: gzip\r\n") {
		t.Fatalf("missing Content-Encoding: %q", raw)
	}
	zr, err := gzip.NewReader(bytes.NewReader(resp.Body))
	if err != nil {
		t.Fatal(err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(plain) != "abc" {
		t.Errorf("decoded body = %q, want abc", plain)
	}
}

func TestDispatch_FileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := newTestRouter(t, dir)

	got := dispatch(t, r, "POST /files/note.txt HTTP/1.1\r\nContent-Type: application/octet-stream\r\nContent-Length: 5\r\n\r\nhello")
	if got != "HTTP/1.1 201 Created\r\n\r\n" {
		t.Fatalf("POST = %q", got)
	}

	onDisk, err := os.ReadFile(filepath.Join(dir, "note.txt"))
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	if string(onDisk) != "hello" {
		t.Errorf("file contents = %q, want hello", onDisk)
	}

	got = dispatch(t, r, "GET /files/note.txt HTTP/1.1\r\n\r\n")
	want := "HTTP/1.1 200 OK\r\nContent-Type: application/octet-stream\r\nContent-Length: 5\r\n\r\nhello"
	if got != want {
		t.Errorf("GET = %q, want %q", got, want)
	}
}

func TestDispatch_FileBytesUntouched(t *testing.T) {
	dir := t.TempDir()
	body := []byte("line\r\n\r\n")
	if err := os.WriteFile(filepath.Join(dir, "crlf.txt"), body, 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestRouter(t, dir)

	req, err := request.Parse([]byte("GET /files/crlf.txt HTTP/1.1\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if resp := r.Dispatch(req); !bytes.Equal(resp.Body, body) {
		t.Errorf("Body = %q, want %q", resp.Body, body)
	}
}

func TestDispatch_FilesUnconfigured(t *testing.T) {
	r := newTestRouter(t, "")

	for _, raw := range []string{
		"GET /files/a HTTP/1.1\r\n\r\n",
		"POST /files/a HTTP/1.1\r\n\r\nbody",
	} {
		if got := dispatch(t, r, raw); got != "HTTP/1.1 404 Not Found\r\n\r\n" {
			t.Errorf("Dispatch(%q) = %q, want 404", raw, got)
		}
	}
}

func TestDispatch_FileWriteFailure(t *testing.T) {
	r := newTestRouter(t, t.TempDir())

	req, err := request.Parse([]byte("POST /files/note.txt HTTP/1.1\r\n\r\nhello"))
	if err != nil {
		t.Fatal(err)
	}
	// the base directory does not exist, so the create fails
	r.store = filestore.New(filepath.Join(t.TempDir(), "missing-parent", "deeper"), false)

	resp := r.Dispatch(req)
	if resp.Status != http.StatusInternalServerError {
		t.Fatalf("Status = %d, want 500", resp.Status)
	}
	raw := string(resp.Bytes())
	if _, body, ok := strings.Cut(raw, "\r\n\r\n"); !ok || body == "" {
		t.Errorf("500 response should carry framed error text: %q", raw)
	}
}

func TestDispatch_ConnectionEchoed(t *testing.T) {
	r := newTestRouter(t, "")

	got := dispatch(t, r, "GET /echo/hi HTTP/1.1\r\nConnection: close\r\n\r\n")
	want := "HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Type: text/plain\r\nContent-Length: 2\r\n\r\nhi"
	if got != want {
		t.Errorf("Dispatch() = %q, want %q", got, want)
	}
}
