package ulogger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// callerWidth is the column width of the shortened caller in pretty output.
const callerWidth = 32

type ZLoggerWrapper struct {
	zerolog.Logger
	service string
	w       io.Writer
	fields  map[string]interface{}
}

func NewZeroLogger(service string, options ...Option) *ZLoggerWrapper {
	if service == "" {
		service = "chaincore"
	}

	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	var (
		output io.Writer = opts.writer
		skip             = zerolog.CallerSkipFrameCount + 2
	)

	if gocore.Config().GetBool("PRETTY_LOGS", true) {
		output = consoleWriter(opts.writer, service)
		skip = zerolog.CallerSkipFrameCount + 1
	}

	ctx := zerolog.New(output).With().
		CallerWithSkipFrameCount(skip + opts.skip).
		Timestamp()

	if len(opts.fields) > 0 {
		ctx = ctx.Fields(opts.fields)
	}

	z := &ZLoggerWrapper{
		Logger:  ctx.Logger(),
		service: service,
		w:       opts.writer,
		fields:  opts.fields,
	}

	z.SetLogLevel(opts.logLevel)

	return z
}

// consoleWriter formats events as "15:04:05 | LEVEL | caller | service | message",
// colouring the level like gocore does when writing to a terminal.
func consoleWriter(writer io.Writer, service string) zerolog.ConsoleWriter {
	colors := false
	if f, ok := writer.(*os.File); ok {
		colors = term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == ""
	}

	output := zerolog.ConsoleWriter{
		Out:        writer,
		NoColor:    !colors,
		TimeFormat: "15:04:05",
	}

	output.FormatLevel = func(i interface{}) string {
		level, _ := i.(string)
		return fmt.Sprintf("| %s|", colorize(strings.ToUpper(fmt.Sprintf("%-6s", level)), levelColor(level), colors))
	}

	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-6s| %s", service, i)
	}

	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s:", i)
	}

	output.FormatCaller = func(i interface{}) string {
		caller, _ := i.(string)
		if caller == "" {
			return ""
		}

		return colorize(fmt.Sprintf("%-*s", callerWidth, shortCaller(caller)), colorBold, colors)
	}

	return output
}

// shortCaller keeps as many trailing path elements of file:line as fit in
// callerWidth.
func shortCaller(caller string) string {
	parts := strings.Split(caller, "/")
	short := parts[len(parts)-1]

	for i := len(parts) - 2; i >= 0; i-- {
		if len(short)+len(parts[i])+1 > callerWidth {
			break
		}

		short = parts[i] + "/" + short
	}

	return short
}

func levelColor(level string) int {
	switch level {
	case "debug":
		return colorBlue
	case "info":
		return colorGreen
	case "warn":
		return colorYellow
	case "error", "fatal", "panic":
		return colorRed
	default:
		return colorWhite
	}
}

// inherit returns the options a child logger starts from.
func (z *ZLoggerWrapper) inherit(options []Option) []Option {
	return append([]Option{
		WithWriter(z.w),
		WithLevel(z.Logger.GetLevel().String()),
		WithFields(z.fields),
	}, options...)
}

func (z *ZLoggerWrapper) New(service string, options ...Option) Logger {
	return NewZeroLogger(service, z.inherit(options)...)
}

func (z *ZLoggerWrapper) Duplicate(options ...Option) Logger {
	return NewZeroLogger(z.service, z.inherit(options)...)
}

func (z *ZLoggerWrapper) SetLogLevel(logLevel string) {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || level == zerolog.NoLevel || level < zerolog.DebugLevel {
		level = zerolog.InfoLevel
	}

	z.Logger = z.Logger.Level(level)
}

func (z *ZLoggerWrapper) LogLevel() int {
	switch z.Logger.GetLevel() {
	case zerolog.DebugLevel:
		return int(gocore.DEBUG)
	case zerolog.WarnLevel:
		return int(gocore.WARN)
	case zerolog.ErrorLevel:
		return int(gocore.ERROR)
	case zerolog.FatalLevel:
		return int(gocore.FATAL)
	default:
		return int(gocore.INFO)
	}
}

func (z *ZLoggerWrapper) Debugf(format string, args ...interface{}) {
	z.Logger.Debug().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Infof(format string, args ...interface{}) {
	z.Logger.Info().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Warnf(format string, args ...interface{}) {
	z.Logger.Warn().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Errorf(format string, args ...interface{}) {
	z.Logger.Error().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Fatalf(format string, args ...interface{}) {
	z.Logger.Fatal().Msgf(format, args...)
}

func colorize(s string, c int, enabled bool) string {
	if !enabled || c == 0 {
		return s
	}

	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
}
