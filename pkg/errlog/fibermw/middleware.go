// Package fibermw plugs an errlog.Recorder into a Fiber application.
package fibermw

import (
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tuncerburak97/errlog/pkg/errlog"
)

// New returns a handler that records every failure of the handlers after
// it and returns the failure unchanged. Register it after recover.New() so
// re-raised panics still become 500 responses.
func New(rec *errlog.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		defer func() {
			v := recover()
			if v == nil {
				return
			}
			perr := errlog.NewPanicError(v, debug.Stack())
			if rec.ShouldRecord(perr) {
				rec.Record(newRequest(c, rec), errlog.Failure{
					Err:        perr,
					StatusCode: fiber.StatusInternalServerError,
					Elapsed:    time.Since(start),
				})
			}
			panic(v)
		}()

		err := c.Next()
		if err == nil {
			if status := c.Response().StatusCode(); rec.ShouldRecordStatus(status) {
				rec.Record(newRequest(c, rec), errlog.Failure{
					Err:        &errlog.StatusError{Code: status},
					StatusCode: status,
					Elapsed:    time.Since(start),
				})
			}
			return nil
		}

		if rec.ShouldRecord(err) {
			rec.Record(newRequest(c, rec), errlog.Failure{
				Err:        describable(err),
				StatusCode: statusOf(err),
				Elapsed:    time.Since(start),
			})
		}
		return err
	}
}

func newRequest(c *fiber.Ctx, rec *errlog.Recorder) errlog.Request {
	body := c.Body()
	req := errlog.Request{
		Method:   c.Method(),
		Path:     c.Path(),
		Query:    queryOf(c),
		Headers:  c.GetReqHeaders(),
		BodySize: int64(len(body)),
		ClientIP: c.IP(),
	}
	if rec.BodyLimit() != 0 {
		req.Body = body
	}
	return req
}

// queryOf joins repeated keys with ", " like request headers.
func queryOf(c *fiber.Ctx) map[string]string {
	args := c.Context().QueryArgs()
	if args.Len() == 0 {
		return nil
	}
	q := make(map[string]string, args.Len())
	args.VisitAll(func(k, v []byte) {
		key := string(k)
		if prev, ok := q[key]; ok {
			q[key] = prev + ", " + string(v)
			return
		}
		q[key] = string(v)
	})
	return q
}

// statusOf mirrors fiber.DefaultErrorHandler.
func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

type httpError struct {
	err error
}

func (e httpError) Error() string { return e.err.Error() }
func (e httpError) Kind() string  { return errlog.KindHTTPError }
func (e httpError) Unwrap() error { return e.err }

// describable only affects how err is logged, the caller still returns err.
func describable(err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return httpError{err}
	}
	return err
}
