package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

const RunIDKey = "run_id"

type Fields = logrus.Fields

// Options controls Configure. Empty values keep the current setting.
type Options struct {
	Level    string
	File     string
	NoColors bool
}

func NewLogger() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)

		logger.SetFormatter(newFormatter(false))
		logger.SetOutput(os.Stderr)
		logger.SetReportCaller(true)
	})

	return logger
}

func newFormatter(noColors bool) *formatter.Formatter {
	return &formatter.Formatter{
		NoColors:        noColors,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			if noColors {
				return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
			}
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	}
}

// Configure applies level and output settings. A log file is rotated by
// lumberjack and written alongside stderr.
func Configure(opts Options) error {
	l := NewLogger()

	if opts.Level != "" {
		if err := SetLevel(opts.Level); err != nil {
			return err
		}
	}

	l.SetFormatter(newFormatter(opts.NoColors))

	writers := []io.Writer{os.Stderr}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}
	l.SetOutput(io.MultiWriter(writers...))
	return nil
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	NewLogger().SetOutput(w)
}

// SetLevel parses and applies a level name.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	NewLogger().SetLevel(lvl)
	return nil
}

func entry(fields Fields) *logrus.Entry {
	if fields == nil {
		fields = Fields{}
	}
	return NewLogger().WithFields(fields)
}

func Debug(fields Fields, msg string) {
	entry(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	entry(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	entry(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	entry(fields).Error(msg)
}

func Fatal(fields Fields, msg string) {
	entry(fields).Fatal(msg)
}

// WithRunID tags entries with the evaluation run they belong to.
func WithRunID(runID string) *logrus.Entry {
	if runID == "" {
		runID = "unknown"
	}
	return NewLogger().WithField(RunIDKey, runID)
}
