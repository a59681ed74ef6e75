package errlog

import "time"

// Record is one captured failure, written as a single JSON line.
type Record struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	StackTrace   string         `json:"stack_trace,omitempty"`
	StatusCode   int            `json:"status_code,omitempty"`
	Request      RequestDetails `json:"request"`
	SystemInfo   *SystemInfo    `json:"system_info,omitempty"`
}

type RequestDetails struct {
	Method         string            `json:"method"`
	Path           string            `json:"path"`
	QueryParams    map[string]string `json:"query_params,omitempty"`
	Headers        map[string]string `json:"headers"`
	Body           string            `json:"body,omitempty"`
	BodySize       *int64            `json:"body_size,omitempty"`
	BodyTruncated  bool              `json:"body_truncated,omitempty"`
	ClientIP       string            `json:"client_ip,omitempty"`
	ResponseTimeMs float64           `json:"response_time_ms"`
}

type SystemInfo struct {
	OS              string   `json:"os"`
	Platform        string   `json:"platform,omitempty"`
	PlatformVersion string   `json:"platform_version,omitempty"`
	KernelVersion   string   `json:"kernel_version,omitempty"`
	Arch            string   `json:"arch"`
	GoVersion       string   `json:"go_version"`
	Hostname        string   `json:"hostname"`
	CPUPercent      *float64 `json:"cpu_percent,omitempty"`
	MemoryPercent   *float64 `json:"memory_percent,omitempty"`
	DiskPercent     *float64 `json:"disk_percent,omitempty"`
}

// Request is what a framework adapter hands to the Recorder. Body may be a
// prefix of the real payload. BodySize is the full length, negative when
// unknown. BodyTruncated lets an adapter report a cut the size cannot show.
type Request struct {
	Method        string
	Path          string
	Query         map[string]string
	Headers       map[string][]string
	Body          []byte
	BodySize      int64
	BodyTruncated bool
	ClientIP      string
}

// Failure describes what went wrong for one request.
type Failure struct {
	Err        error
	StatusCode int
	Elapsed    time.Duration
}
