// Package ginmw plugs an errlog.Recorder into a Gin engine.
//
// Gin handlers report failures through c.Error or by panicking. The
// middleware records each entry of c.Errors and leaves the slice as it was.
package ginmw

import (
	"context"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tuncerburak97/errlog/pkg/errlog"
)

// New returns the error capture middleware. When body capture is on, the
// request body is copied up to the configured limit while the handler reads
// it. Bytes the handler never reads are not captured.
func New(rec *errlog.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		tee := teeBody(c.Request, rec.BodyLimit())

		defer func() {
			v := recover()
			if v == nil {
				return
			}
			perr := errlog.NewPanicError(v, debug.Stack())
			if rec.ShouldRecord(perr) && !cancelled(c, rec) {
				rec.Record(newRequest(c, tee), errlog.Failure{
					Err:        perr,
					StatusCode: http.StatusInternalServerError,
					Elapsed:    time.Since(start),
				})
			}
			panic(v)
		}()

		c.Next()

		status := c.Writer.Status()
		if len(c.Errors) == 0 {
			if rec.ShouldRecordStatus(status) {
				rec.Record(newRequest(c, tee), errlog.Failure{
					Err:        &errlog.StatusError{Code: status},
					StatusCode: status,
					Elapsed:    time.Since(start),
				})
			}
			return
		}
		if cancelled(c, rec) {
			return
		}

		req := newRequest(c, tee)
		for _, ge := range c.Errors {
			if !rec.ShouldRecord(ge.Err) {
				continue
			}
			rec.Record(req, errlog.Failure{
				Err:        ge.Err,
				StatusCode: status,
				Elapsed:    time.Since(start),
			})
		}
	}
}

func cancelled(c *gin.Context, rec *errlog.Recorder) bool {
	return !rec.Config().LogCancelled && errors.Is(c.Request.Context().Err(), context.Canceled)
}

func newRequest(c *gin.Context, tee *bodyTee) errlog.Request {
	headers := make(map[string][]string, len(c.Request.Header)+1)
	for k, v := range c.Request.Header {
		headers[k] = v
	}
	if c.Request.Host != "" {
		headers["Host"] = []string{c.Request.Host}
	}

	req := errlog.Request{
		Method:   c.Request.Method,
		Path:     c.Request.URL.Path,
		Headers:  headers,
		BodySize: c.Request.ContentLength,
		ClientIP: c.ClientIP(),
	}
	if tee != nil {
		req.Body, req.BodySize, req.BodyTruncated = tee.captured(c.Request.ContentLength)
	}
	if q := c.Request.URL.Query(); len(q) > 0 {
		req.Query = make(map[string]string, len(q))
		for k, v := range q {
			req.Query[k] = strings.Join(v, ", ")
		}
	}
	return req
}

// bodyTee copies up to limit bytes of what the handler reads (all of it when
// limit is negative) and counts the rest. Read results pass through as is.
type bodyTee struct {
	rc    io.ReadCloser
	limit int
	buf   []byte
	n     int64
	eof   bool
}

func teeBody(r *http.Request, limit int) *bodyTee {
	if limit == 0 || r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	t := &bodyTee{rc: r.Body, limit: limit}
	r.Body = t
	return t
}

func (t *bodyTee) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	if n > 0 {
		t.n += int64(n)
		keep := n
		if t.limit > 0 {
			keep = min(n, t.limit-len(t.buf))
		}
		if keep > 0 {
			t.buf = append(t.buf, p[:keep]...)
		}
	}
	if err == io.EOF {
		t.eof = true
	}
	return n, err
}

func (t *bodyTee) Close() error {
	return t.rc.Close()
}

// captured returns the copied prefix and the body size. The size is the
// declared length when there is one, the read count once the body was read to
// the end, and -1 otherwise.
func (t *bodyTee) captured(declared int64) ([]byte, int64, bool) {
	switch {
	case declared >= 0:
		return t.buf, max(declared, t.n), false
	case t.eof:
		return t.buf, t.n, false
	default:
		return t.buf, -1, t.n > int64(len(t.buf))
	}
}
