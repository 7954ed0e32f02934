// Command chaincore runs the validating block store and offers a few offline
// tools against its data folder.
package main

import (
	"fmt"
	"os"

	"github.com/bitcoin-sv/chaincore/settings"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/ordishs/gocore"
	"github.com/urfave/cli/v2"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "chaincore"

// Version & commit strings injected at build with -ldflags -X...
var (
	version string
	commit  string
)

func main() {
	gocore.SetInfo(progname, version, commit)

	tSettings := settings.NewSettings()
	logger := ulogger.New(progname, ulogger.WithLevel(tSettings.LogLevel), ulogger.WithLoggerType(tSettings.LoggerType))

	app := &cli.App{
		Name:    progname,
		Usage:   "validate and store Bitcoin SV blocks",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the block store until interrupted",
				Action: func(c *cli.Context) error {
					return run(c.Context, logger, tSettings)
				},
			},
			{
				Name:  "store",
				Usage: "validate and store hex encoded blocks, one per line",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "file with one hex encoded block per line, - for stdin", Value: "-"},
					&cli.BoolFlag{Name: "import", Usage: "append the blocks without validating them"},
				},
				Action: func(c *cli.Context) error {
					return storeBlocks(logger, tSettings, c.String("file"), c.Bool("import"))
				},
			},
			{
				Name:  "height",
				Usage: "print the height of the chain tip",
				Action: func(_ *cli.Context) error {
					return printHeight(logger, tSettings)
				},
			},
			{
				Name:  "header",
				Usage: "print the header at a height",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "height", Required: true},
				},
				Action: func(c *cli.Context) error {
					return printHeader(logger, tSettings, uint32(c.Uint("height"))) //nolint:gosec // user supplied height
				},
			},
			{
				Name:      "decode-header",
				Usage:     "print the fields of a hex encoded block header",
				ArgsUsage: "HEX",
				Action: func(c *cli.Context) error {
					return decodeHeader(os.Stdout, c.Args().First())
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
