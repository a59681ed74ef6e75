// Package errlog records failed HTTP requests as JSON Lines.
//
// A Recorder is framework agnostic. Adapters in fibermw and ginmw call it
// from the error path of a middleware and then hand the original failure
// back to the framework untouched.
package errlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Observer is notified about captures and writes, e.g. for metrics.
type Observer interface {
	CaptureObserved(kind string, statusCode int)
	WriteObserved(elapsed time.Duration, err error)
}

type Option func(*Recorder)

// WithLogger sets the diagnostic logger. It must not write to the log file.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

func WithSink(s Sink) Option {
	return func(r *Recorder) { r.sink = s }
}

func WithObserver(o Observer) Option {
	return func(r *Recorder) { r.observer = o }
}

func WithSystemProbe(p *SystemProbe) Option {
	return func(r *Recorder) { r.probe = p }
}

type Recorder struct {
	cfg      Config
	sink     Sink
	probe    *SystemProbe
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
}

func New(cfg Config, opts ...Option) (*Recorder, error) {
	cfg = cfg.normalize()

	r := &Recorder{
		cfg:    cfg,
		logger: zerolog.New(os.Stderr).With().Timestamp().Str("component", "errlog").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.sink == nil {
		sink, err := NewFileSink(cfg.LogFilePath)
		if err != nil {
			return nil, err
		}
		r.sink = sink
	}
	if r.probe == nil && cfg.IncludeSystemInfo {
		r.probe = NewSystemProbe(cfg.IncludeResourceUsage)
	}
	return r, nil
}

func (r *Recorder) Config() Config {
	return r.cfg
}

// ShouldRecord reports whether err is a failure worth a record.
func (r *Recorder) ShouldRecord(err error) bool {
	if err == nil {
		return false
	}
	if !r.cfg.LogCancelled && errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// ShouldRecordStatus reports whether a response that completed without an
// error should still be recorded.
func (r *Recorder) ShouldRecordStatus(status int) bool {
	return r.cfg.LogErrorResponses && status >= http.StatusBadRequest
}

// BodyLimit is the number of body bytes kept, -1 when unlimited and 0 when
// body capture is off.
func (r *Recorder) BodyLimit() int {
	if !r.cfg.CaptureBody {
		return 0
	}
	if r.cfg.MaxBodyBytes < 0 {
		return -1
	}
	return r.cfg.MaxBodyBytes
}

// Record writes one line for f. Write problems are reported on the
// diagnostic logger and never returned.
func (r *Recorder) Record(req Request, f Failure) {
	rec := r.build(req, f)

	if r.observer != nil {
		r.observer.CaptureObserved(rec.ErrorType, rec.StatusCode)
	}

	start := time.Now()
	err := r.write(rec)
	if r.observer != nil {
		r.observer.WriteObserved(time.Since(start), err)
	}
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("record_id", rec.ID).
			Str("error_type", rec.ErrorType).
			Str("method", rec.Request.Method).
			Str("path", rec.Request.Path).
			Msg("Failed to write error log record")
	}
}

func (r *Recorder) build(req Request, f Failure) *Record {
	desc := Describe(f.Err)

	rec := &Record{
		ID:           uuid.NewString(),
		Timestamp:    r.now().UTC(),
		ErrorType:    desc.Kind,
		ErrorMessage: desc.Message,
		StackTrace:   desc.StackTrace,
		StatusCode:   f.StatusCode,
		Request: RequestDetails{
			Method:         req.Method,
			Path:           req.Path,
			QueryParams:    req.Query,
			Headers:        flattenHeaders(req.Headers),
			ClientIP:       req.ClientIP,
			ResponseTimeMs: float64(f.Elapsed.Microseconds()) / 1000,
		},
	}

	size := req.BodySize
	if size >= 0 {
		if size < int64(len(req.Body)) {
			size = int64(len(req.Body))
		}
		rec.Request.BodySize = &size
	}

	if limit := r.BodyLimit(); limit != 0 {
		var truncated bool
		rec.Request.Body, truncated = bodyText(req.Body, size, limit)
		rec.Request.BodyTruncated = truncated || req.BodyTruncated
	}

	if r.probe != nil {
		rec.SystemInfo = r.probe.Info()
	}
	return rec
}

func (r *Recorder) write(rec *Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return r.sink.Append(append(line, '\n'))
}

func flattenHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		key := http.CanonicalHeaderKey(k)
		if prev, ok := out[key]; ok {
			out[key] = prev + ", " + strings.Join(v, ", ")
			continue
		}
		out[key] = strings.Join(v, ", ")
	}
	return out
}

// bodyText renders at most limit bytes of body (limit < 0 means all).
// Bodies that are not UTF-8 text are replaced by a placeholder. A negative
// size means the full length is unknown.
func bodyText(body []byte, size int64, limit int) (string, bool) {
	if len(body) == 0 {
		return "", size > 0
	}

	cut := body
	if limit > 0 && len(cut) > limit {
		cut = cut[:limit]
	}
	truncated := len(cut) < len(body) || int64(len(cut)) < size

	// a multi-byte rune may straddle the cut
	for i := 0; truncated && i < utf8.UTFMax-1 && len(cut) > 0 && !utf8.Valid(cut); i++ {
		cut = cut[:len(cut)-1]
	}
	if !utf8.Valid(cut) {
		if size < 0 {
			size = int64(len(body))
		}
		return fmt.Sprintf("<binary body: %d bytes>", size), false
	}
	return string(cut), truncated
}
