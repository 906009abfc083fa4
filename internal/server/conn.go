package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"

	httpderrors "httpd/internal/errors"
	"httpd/internal/request"
	"httpd/internal/response"
)

// conn is one accepted connection. It moves through
// reading -> dispatching -> writing and back to reading until a response
// carries Connection: close or the socket fails.
type conn struct {
	server  *Server
	netConn net.Conn
	id      string
	logger  *slog.Logger

	// idle is set while blocked waiting for the next request
	idle atomic.Bool

	raw     []byte
	readErr error
	resp    *response.Response
}

type stateFn func(*conn) stateFn

func (c *conn) serve() {
	defer func() { _ = c.netConn.Close() }()

	c.logger.Debug("Connection opened")
	for state := reading; state != nil; {
		state = state(c)
	}
	c.logger.Debug("Connection closed")
}

func reading(c *conn) stateFn {
	c.idle.Store(true)
	if c.server.closing.Load() {
		return nil
	}

	raw, err := c.readRequest()
	c.idle.Store(false)

	if err != nil {
		if errors.Is(err, errRequestTooLarge) {
			c.raw, c.readErr = raw, err
			return dispatching
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			c.logger.Debug("Read failed", "error", err)
		}
		return nil
	}

	c.raw, c.readErr = raw, nil
	return dispatching
}

func dispatching(c *conn) stateFn {
	start := time.Now()
	c.resp = c.handle()
	c.server.requests.Add(1)

	c.logger.Info("HTTP request",
		"status", c.resp.Status,
		"bytes", len(c.resp.Body),
		"duration", time.Since(start),
	)
	return writing
}

func writing(c *conn) stateFn {
	if _, err := c.resp.WriteTo(c.netConn); err != nil {
		c.logger.Debug("Write failed", "error", err)
		return nil
	}
	if c.resp.Close() {
		return nil
	}
	return reading
}

// handle turns the buffered request into a response. A panic in a route is
// contained to this exchange and the connection is closed afterwards.
func (c *conn) handle() (resp *response.Response) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic recovered",
				"error", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			resp = response.Error(nil, httpderrors.New(httpderrors.InternalError, "internal server error", nil))
			resp.Connection = "close"
		}
	}()

	req, err := request.Parse(c.raw)
	if c.readErr != nil {
		resp = response.Error(req, httpderrors.New(httpderrors.RequestTooLarge, "request exceeds size limit", c.readErr))
		// unread body bytes would be taken for the next request
		resp.Connection = "close"
		return resp
	}
	if err != nil {
		c.logger.Debug("Bad request", "error", err)
		resp = response.Error(req, err)
		if req == nil {
			// the request line was unusable but the client's keep-alive choice still applies
			resp.Connection = request.Headers(c.raw)[request.HeaderConnection]
		}
		return resp
	}

	c.logger.Debug("Dispatching", "method", string(req.Method), "path", req.Path, "subpath", req.Subpath)
	return c.server.dispatcher.Dispatch(req)
}

var errRequestTooLarge = errors.New("request too large")

// readRequest performs one read and, if the headers declare a longer body than
// arrived, keeps reading until it is complete or MaxRequestBytes is reached.
func (c *conn) readRequest() ([]byte, error) {
	opts := c.server.opts

	if opts.IdleTimeout > 0 {
		if err := c.netConn.SetReadDeadline(time.Now().Add(opts.IdleTimeout)); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, opts.ReadBufferSize)
	n, err := c.netConn.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			c.logger.Debug("Idle timeout", "after", opts.IdleTimeout)
		}
		return nil, err
	}
	data := buf[:n]
	// a request has started arriving; Shutdown must wait for its response
	c.idle.Store(false)

	for {
		missing := request.Remaining(data)
		if missing == 0 {
			return data, nil
		}
		// Content-Length is client controlled, so compare without adding
		if missing > opts.MaxRequestBytes-len(data) {
			return data, errRequestTooLarge
		}

		if opts.IdleTimeout > 0 {
			_ = c.netConn.SetReadDeadline(time.Now().Add(opts.IdleTimeout))
		}
		chunk := make([]byte, min(missing, opts.ReadBufferSize))
		n, err := io.ReadAtLeast(c.netConn, chunk, 1)
		data = append(data, chunk[:n]...)
		if err != nil {
			return nil, err
		}
	}
}
