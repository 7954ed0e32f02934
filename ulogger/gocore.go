package ulogger

import (
	"github.com/ordishs/gocore"
)

// GoCoreLogger adapts a gocore logger. Its level is fixed at creation.
type GoCoreLogger struct {
	*gocore.Logger
	skipFrame int
}

func NewGoCoreLogger(service string, options ...Option) *GoCoreLogger {
	if service == "" {
		service = "chaincore"
	}

	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	return &GoCoreLogger{gocore.Log(service, gocore.NewLogLevelFromString(opts.logLevel)), opts.skip}
}

func (g *GoCoreLogger) New(service string, options ...Option) Logger {
	opts := &Options{skip: g.skipFrame}
	for _, o := range options {
		o(opts)
	}

	return &GoCoreLogger{gocore.Log(service, g.Logger.GetLogLevel()), opts.skip}
}

func (g *GoCoreLogger) Duplicate(options ...Option) Logger {
	opts := &Options{skip: g.skipFrame}
	for _, o := range options {
		o(opts)
	}

	return &GoCoreLogger{g.Logger, opts.skip}
}

func (g *GoCoreLogger) LogLevel() int {
	return int(g.Logger.GetLogLevel())
}

func (g *GoCoreLogger) SetLogLevel(string) {}
