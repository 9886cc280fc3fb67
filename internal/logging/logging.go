// Package logging builds the logrus logger used by every command.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/errs"
)

// Options logger settings
type Options struct {
	// Verbose logs warnings and progress, otherwise only errors.
	Verbose bool
	// Level overrides the level chosen by Verbose when set.
	Level string
	// Dir adds a daily log file inside Dir.
	Dir string
	// Out terminal writer, os.Stderr when nil.
	Out io.Writer
}

// New creates a logger writing to the terminal and, optionally, a log file.
// The returned closer releases the log file.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	logIO := []io.Writer{out}
	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, nil, errs.Wrap(err)
		}
		filename := filepath.Join(opts.Dir, time.Now().Format("2006-01-02.log"))
		file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, errs.Wrap(err)
		}
		logIO = append(logIO, file)
		closer = file
	}
	log.SetOutput(ansicolor.NewAnsiColorWriter(io.MultiWriter(logIO...)))

	level := logrus.ErrorLevel
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, errs.Combine(errs.Wrap(err), closer.Close())
		}
		level = parsed
	}
	log.SetLevel(level)
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
