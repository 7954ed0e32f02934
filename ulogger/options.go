package ulogger

import (
	"io"
	"maps"
	"os"
)

type Options struct {
	logLevel   string
	loggerType string
	writer     io.Writer
	skip       int
	fields     map[string]interface{}
}

type Option func(*Options)

func DefaultOptions() *Options {
	return &Options{
		logLevel:   "INFO",
		loggerType: "zerolog",
		writer:     os.Stdout,
	}
}

func WithLevel(level string) Option {
	return func(o *Options) {
		o.logLevel = level
	}
}

// WithLoggerType selects the implementation: "zerolog" (default) or "gocore".
func WithLoggerType(loggerType string) Option {
	return func(o *Options) {
		o.loggerType = loggerType
	}
}

func WithWriter(w io.Writer) Option {
	return func(o *Options) {
		o.writer = w
	}
}

// WithSkipFrame sets the number of additional caller frames to skip.
func WithSkipFrame(skip int) Option {
	return func(o *Options) {
		o.skip = skip
	}
}

// WithFields attaches key/value pairs to every line the logger writes. Fields
// accumulate across calls and are inherited by child loggers. The gocore
// logger ignores them.
func WithFields(fields map[string]interface{}) Option {
	return func(o *Options) {
		if len(fields) == 0 {
			return
		}

		merged := make(map[string]interface{}, len(o.fields)+len(fields))
		maps.Copy(merged, o.fields)
		maps.Copy(merged, fields)

		o.fields = merged
	}
}
