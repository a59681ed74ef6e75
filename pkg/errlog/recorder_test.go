package errlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T, mutate func(*Config), opts ...Option) (*Recorder, string) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.LogFilePath = filepath.Join(t.TempDir(), "logs", "errors.jsonl")
	if mutate != nil {
		mutate(&cfg)
	}

	rec, err := New(cfg, opts...)
	require.NoError(t, err)
	return rec, cfg.LogFilePath
}

func readRecords(t *testing.T, path string) []Record {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), "line: %s", sc.Text())
		out = append(out, r)
	}
	require.NoError(t, sc.Err())
	return out
}

type fakeObserver struct {
	kinds    []string
	statuses []int
	writeErr []error
}

func (o *fakeObserver) CaptureObserved(kind string, statusCode int) {
	o.kinds = append(o.kinds, kind)
	o.statuses = append(o.statuses, statusCode)
}

func (o *fakeObserver) WriteObserved(_ time.Duration, err error) {
	o.writeErr = append(o.writeErr, err)
}

type failingSink struct{}

func (failingSink) Append([]byte) error { return errors.New("disk full") }

func TestRecorderRecord(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	rec, path := newTestRecorder(t, nil)
	rec.now = func() time.Time { return fixed }

	rec.Record(Request{
		Method:   "GET",
		Path:     "/items/42",
		Query:    map[string]string{"verbose": "1"},
		Headers:  map[string][]string{"x-test": {"1"}, "Accept": {"text/plain", "application/json"}},
		Body:     []byte(`{"a":1}`),
		BodySize: 7,
		ClientIP: "10.0.0.1",
	}, Failure{
		Err:        &ValueError{msg: "missing item"},
		StatusCode: 500,
		Elapsed:    1500 * time.Microsecond,
	})

	records := readRecords(t, path)
	require.Len(t, records, 1)
	r := records[0]

	assert.NotEmpty(t, r.ID)
	assert.True(t, r.Timestamp.Equal(fixed))
	assert.Equal(t, time.UTC, r.Timestamp.Location())
	assert.Equal(t, "ValueError", r.ErrorType)
	assert.Equal(t, "missing item", r.ErrorMessage)
	assert.Empty(t, r.StackTrace)
	assert.Equal(t, 500, r.StatusCode)

	assert.Equal(t, "GET", r.Request.Method)
	assert.Equal(t, "/items/42", r.Request.Path)
	assert.Equal(t, map[string]string{"verbose": "1"}, r.Request.QueryParams)
	assert.Equal(t, "1", r.Request.Headers["X-Test"])
	assert.Equal(t, "text/plain, application/json", r.Request.Headers["Accept"])
	assert.Equal(t, `{"a":1}`, r.Request.Body)
	require.NotNil(t, r.Request.BodySize)
	assert.EqualValues(t, 7, *r.Request.BodySize)
	assert.False(t, r.Request.BodyTruncated)
	assert.Equal(t, "10.0.0.1", r.Request.ClientIP)
	assert.InDelta(t, 1.5, r.Request.ResponseTimeMs, 0.001)

	require.NotNil(t, r.SystemInfo)
	assert.NotEmpty(t, r.SystemInfo.OS)
	assert.NotEmpty(t, r.SystemInfo.GoVersion)
	assert.NotEmpty(t, r.SystemInfo.Arch)
	assert.Nil(t, r.SystemInfo.CPUPercent)
}

func TestRecorderAppendsOneLinePerFailure(t *testing.T) {
	rec, path := newTestRecorder(t, nil)

	for i := 0; i < 3; i++ {
		rec.Record(Request{Method: "GET", Path: "/"}, Failure{Err: fmt.Errorf("failure %d", i)})
	}

	records := readRecords(t, path)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, fmt.Sprintf("failure %d", i), r.ErrorMessage)
	}
}

func TestRecorderBodyPolicy(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		body          []byte
		size          int64
		wantBody      string
		wantTruncated bool
	}{
		{
			name:          "cut at limit",
			mutate:        func(c *Config) { c.MaxBodyBytes = 4 },
			body:          []byte("hello world"),
			size:          11,
			wantBody:      "hell",
			wantTruncated: true,
		},
		{
			name:          "rune straddling the cut",
			mutate:        func(c *Config) { c.MaxBodyBytes = 2 },
			body:          []byte("héllo"),
			size:          6,
			wantBody:      "h",
			wantTruncated: true,
		},
		{
			name:     "binary body",
			body:     []byte{0xff, 0xfe, 0x00, 0x01},
			size:     4,
			wantBody: "<binary body: 4 bytes>",
		},
		{
			name:     "unlimited",
			mutate:   func(c *Config) { c.MaxBodyBytes = -1 },
			body:     bytes.Repeat([]byte("a"), DefaultMaxBodyBytes+10),
			size:     DefaultMaxBodyBytes + 10,
			wantBody: string(bytes.Repeat([]byte("a"), DefaultMaxBodyBytes+10)),
		},
		{
			name:     "capture disabled",
			mutate:   func(c *Config) { c.CaptureBody = false },
			body:     []byte("secret"),
			size:     6,
			wantBody: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, path := newTestRecorder(t, tt.mutate)
			rec.Record(Request{Method: "POST", Path: "/", Body: tt.body, BodySize: tt.size}, Failure{Err: errors.New("x")})

			records := readRecords(t, path)
			require.Len(t, records, 1)
			assert.Equal(t, tt.wantBody, records[0].Request.Body)
			assert.Equal(t, tt.wantTruncated, records[0].Request.BodyTruncated)
			require.NotNil(t, records[0].Request.BodySize)
			assert.Equal(t, tt.size, *records[0].Request.BodySize)
		})
	}
}

func TestRecorderUnknownBodySize(t *testing.T) {
	t.Run("cut by limit", func(t *testing.T) {
		rec, path := newTestRecorder(t, func(c *Config) { c.MaxBodyBytes = 4 })
		rec.Record(Request{Method: "POST", Path: "/", Body: []byte("aaaaaaaa"), BodySize: -1}, Failure{Err: errors.New("x")})

		records := readRecords(t, path)
		require.Len(t, records, 1)
		assert.Equal(t, "aaaa", records[0].Request.Body)
		assert.True(t, records[0].Request.BodyTruncated)
		assert.Nil(t, records[0].Request.BodySize)
	})

	t.Run("cut reported by adapter", func(t *testing.T) {
		rec, path := newTestRecorder(t, func(c *Config) { c.MaxBodyBytes = 4 })
		rec.Record(Request{Method: "POST", Path: "/", Body: []byte("aaaa"), BodySize: -1, BodyTruncated: true}, Failure{Err: errors.New("x")})

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &m))
		request := m["request"].(map[string]any)
		assert.Equal(t, "aaaa", request["body"])
		assert.Equal(t, true, request["body_truncated"])
		assert.NotContains(t, request, "body_size")
	})
}

func TestRecorderWithoutSystemInfo(t *testing.T) {
	rec, path := newTestRecorder(t, func(c *Config) { c.IncludeSystemInfo = false })
	rec.Record(Request{Method: "GET", Path: "/"}, Failure{Err: errors.New("x")})

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &m))
	assert.NotContains(t, m, "system_info")
}

func TestRecorderWriteFailureIsContained(t *testing.T) {
	var diag bytes.Buffer
	obs := &fakeObserver{}

	rec, path := newTestRecorder(t, nil,
		WithSink(failingSink{}),
		WithObserver(obs),
		WithLogger(zerolog.New(&diag)),
	)

	assert.NotPanics(t, func() {
		rec.Record(Request{Method: "GET", Path: "/boom"}, Failure{Err: &ValueError{msg: "boom"}, StatusCode: 500})
	})

	assert.Contains(t, diag.String(), "Failed to write error log record")
	assert.Contains(t, diag.String(), "disk full")
	assert.Equal(t, []string{"ValueError"}, obs.kinds)
	assert.Equal(t, []int{500}, obs.statuses)
	require.Len(t, obs.writeErr, 1)
	assert.Error(t, obs.writeErr[0])

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRecorderShouldRecord(t *testing.T) {
	rec, _ := newTestRecorder(t, nil)
	assert.False(t, rec.ShouldRecord(nil))
	assert.True(t, rec.ShouldRecord(errors.New("x")))
	assert.False(t, rec.ShouldRecord(context.Canceled))
	assert.False(t, rec.ShouldRecord(fmt.Errorf("read: %w", context.Canceled)))
	assert.True(t, rec.ShouldRecord(context.DeadlineExceeded))

	rec, _ = newTestRecorder(t, func(c *Config) { c.LogCancelled = true })
	assert.True(t, rec.ShouldRecord(context.Canceled))
}

func TestRecorderShouldRecordStatus(t *testing.T) {
	rec, _ := newTestRecorder(t, nil)
	assert.False(t, rec.ShouldRecordStatus(500))

	rec, _ = newTestRecorder(t, func(c *Config) { c.LogErrorResponses = true })
	assert.False(t, rec.ShouldRecordStatus(200))
	assert.False(t, rec.ShouldRecordStatus(399))
	assert.True(t, rec.ShouldRecordStatus(400))
	assert.True(t, rec.ShouldRecordStatus(503))
}

func TestNewNormalizesConfig(t *testing.T) {
	rec, err := New(Config{}, WithSink(failingSink{}))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogFilePath, rec.Config().LogFilePath)
	assert.Equal(t, 0, rec.BodyLimit())

	rec, err = New(Config{CaptureBody: true}, WithSink(failingSink{}))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxBodyBytes, rec.BodyLimit())
}
