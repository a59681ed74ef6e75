package errlog

import "errors"

const (
	DefaultLogFilePath  = "error_logs.jsonl"
	DefaultMaxBodyBytes = 64 << 10
)

var ErrEmptyLogPath = errors.New("errlog: log file path is empty")

// Config controls what the Recorder captures and where it writes.
// Start from DefaultConfig, the zero value disables body and system capture.
type Config struct {
	// LogFilePath is the JSON Lines destination.
	LogFilePath string
	// CaptureBody stores the request body, cut at MaxBodyBytes.
	CaptureBody bool
	// MaxBodyBytes caps the stored body. Zero means DefaultMaxBodyBytes,
	// a negative value means no limit.
	MaxBodyBytes int
	// IncludeSystemInfo attaches host facts to every record.
	IncludeSystemInfo bool
	// IncludeResourceUsage samples cpu, memory and disk usage per record.
	IncludeResourceUsage bool
	// LogCancelled records failures caused by context.Canceled.
	LogCancelled bool
	// LogErrorResponses records responses with status >= 400 that completed
	// without a Go error.
	LogErrorResponses bool
}

func DefaultConfig() Config {
	return Config{
		LogFilePath:       DefaultLogFilePath,
		CaptureBody:       true,
		MaxBodyBytes:      DefaultMaxBodyBytes,
		IncludeSystemInfo: true,
	}
}

func (c Config) normalize() Config {
	if c.LogFilePath == "" {
		c.LogFilePath = DefaultLogFilePath
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}
