package main

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"mbutil/internal/config"
	"mbutil/internal/logging"
	"mbutil/internal/pipeline"
	"mbutil/internal/safeexit"
)

type app struct {
	v       *viper.Viper
	cfgFile string
}

type runFunc func(ctx context.Context, conf *config.Conf, opts pipeline.Options, log logrus.FieldLogger) error

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "mbutil",
		Short: "Convert tile directories to MBTiles containers and back",
		Long: `mbutil imports a z/x/y tile directory into an MBTiles container, exports a
container back to a directory, or prints the metadata of a container.

Schemes: "xyz" (z/x/y, row counted from the top), "tms" (z/x/y with a flipped
row) and "wms" (the MapServer TileCache layout z/000/000/x/000/000/y).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "set config `file` (TOML)")
	pf.String("scheme", "xyz", "tiling scheme of the tiles: xyz, tms or wms")
	pf.String("image-format", "png", "format of the image tiles: png, jpg, webp or pbf")
	pf.String("grid-callback", "grid", `JSONP callback of UTFGrid tiles, "" for plain JSON`)
	pf.Bool("verbose", false, "log warnings and progress")
	pf.Bool("progress", false, "show a progress bar")
	pf.String("log-level", "", "override the log level (debug, info, warn, error)")
	pf.String("log-dir", "", "also write logs to a daily file in `dir`")
	a.bind(pf)

	root.AddCommand(a.importCmd(), a.exportCmd(), a.metadataCmd())
	return root
}

// bind exposes every flag to viper under its snake_case key.
func (a *app) bind(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = a.v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

func (a *app) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <tileDir> [containerFile]",
		Short: "Import a tile directory into an MBTiles container",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			output := strings.TrimRight(input, `/\`) + ".mbtiles"
			if len(args) > 1 {
				output = args[1]
			}
			return a.run(cmd, func(ctx context.Context, _ *config.Conf, opts pipeline.Options, _ logrus.FieldLogger) error {
				_, err := pipeline.Import(ctx, input, output, opts)
				return err
			})
		},
	}
	flags := cmd.Flags()
	flags.String("name", "", "name stored in the container metadata")
	flags.String("description", "", "description stored in the container metadata")
	flags.Int("batch-size", 1000, "tiles written per transaction")
	flags.Bool("strict-format", false, "skip tiles whose content does not match --image-format")
	flags.Bool("require-grid-data", false, "skip UTFGrid tiles without a data object")
	a.bind(flags)
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <containerFile> [tileDir]",
		Short: "Export an MBTiles container into a new tile directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			output := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
			if len(args) > 1 {
				output = args[1]
			}
			return a.run(cmd, func(ctx context.Context, _ *config.Conf, opts pipeline.Options, _ logrus.FieldLogger) error {
				_, err := pipeline.Export(ctx, input, output, opts)
				return err
			})
		},
	}
}

func (a *app) metadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata <containerFile>",
		Short: "Print the metadata of an MBTiles container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(_ context.Context, conf *config.Conf, _ pipeline.Options, _ logrus.FieldLogger) error {
				return pipeline.Report(cmd.OutOrStdout(), args[0], conf.JSON)
			})
		},
	}
	cmd.Flags().Bool("json", false, "print the metadata as a JSON object")
	a.bind(cmd.Flags())
	return cmd
}

// run loads the configuration, sets up logging and interruption, then calls fn.
func (a *app) run(cmd *cobra.Command, fn runFunc) error {
	conf, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	log, closer, err := logging.New(logging.Options{
		Verbose: conf.Verbose,
		Level:   conf.LogLevel,
		Dir:     conf.LogDir,
		Out:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer func(c io.Closer) { _ = c.Close() }(closer)

	opts, err := pipeline.OptionsFromConf(conf, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	exit := safeexit.New()
	defer exit.Stop()
	exit.Register(func() { log.Warn("interrupted, stopping after the current tile") })
	exit.Register(cancel)

	return fn(ctx, conf, opts, log)
}
