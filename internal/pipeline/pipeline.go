// Package pipeline converts tile directories into MBTiles containers and back.
package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	"github.com/zeebo/errs"
	pb "gopkg.in/cheggaaa/pb.v1"

	"mbutil/internal/config"
	"mbutil/internal/mbtiles"
	"mbutil/internal/tileset"
)

var (
	// EmptyInputError import found no usable tiles.
	EmptyInputError = errs.Class("empty input")
	// IOError file system failure.
	IOError = errs.Class("io")
)

// Options settings shared by Import, Export and Report
type Options struct {
	Scheme       tileset.Scheme
	Format       tileset.Format
	GridCallback string

	// Name and Description override the container metadata on import.
	Name        string
	Description string

	BatchSize int
	// StrictFormat skips tiles whose content does not match Format instead of
	// only warning about them.
	StrictFormat bool
	// RequireGridData skips grids that carry no data overlay.
	RequireGridData bool

	// Progress shows a progress bar on ProgressOut, stdout when nil.
	Progress    bool
	ProgressOut io.Writer

	Log logrus.FieldLogger
}

// DefaultOptions xyz, png, grid callback "grid"
func DefaultOptions() Options {
	return Options{
		Scheme:       tileset.XYZ,
		Format:       tileset.PNG,
		GridCallback: "grid",
		BatchSize:    mbtiles.DefaultBatchSize,
	}
}

// OptionsFromConf converts a validated configuration.
func OptionsFromConf(conf *config.Conf, log logrus.FieldLogger) (Options, error) {
	scheme, err := tileset.ParseScheme(conf.Scheme)
	if err != nil {
		return Options{}, err
	}
	format, err := tileset.ParseFormat(conf.ImageFormat)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Scheme:          scheme,
		Format:          format,
		GridCallback:    conf.GridCallback,
		Name:            conf.Name,
		Description:     conf.Description,
		BatchSize:       conf.BatchSize,
		StrictFormat:    conf.StrictFormat,
		RequireGridData: conf.RequireGridData,
		Progress:        conf.Progress,
		Log:             log,
	}, nil
}

func (opts Options) logger() logrus.FieldLogger {
	if opts.Log != nil {
		return opts.Log
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// runLogger tags every line of one pipeline run with a short run id.
func (opts Options) runLogger(command string) (logrus.FieldLogger, string) {
	id, err := shortid.Generate()
	if err != nil {
		id = "-"
	}
	return opts.logger().WithFields(logrus.Fields{"run": id, "cmd": command}), id
}

func (opts Options) newBar(total int, prefix string) *pb.ProgressBar {
	bar := pb.New(total).Prefix(prefix)
	bar.SetRefreshRate(time.Second)
	bar.NotPrint = !opts.Progress
	if opts.ProgressOut != nil {
		bar.Output = opts.ProgressOut
	}
	bar.Start()
	return bar
}

func (opts Options) finishBar(bar *pb.ProgressBar, msg string) {
	if opts.Progress {
		bar.FinishPrint(msg)
		return
	}
	bar.Finish()
}

// writeFile writes data to root joined with the path fragments, creating
// intermediate directories.
func writeFile(root string, parts []string, data []byte) error {
	dir := filepath.Join(append([]string{root}, parts[:len(parts)-1]...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return IOError.Wrap(err)
	}
	name := filepath.Join(dir, parts[len(parts)-1])
	if err := os.WriteFile(name, data, 0644); err != nil {
		return IOError.Wrap(err)
	}
	return nil
}
