package main

import (
	"fmt"
	"io"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(-1)
	}
}

var authFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "api-key-path",
		Usage:   "path to API key JSON file (key_id, issuer_id, key); defaults to the user config dir",
		EnvVars: []string{"SHIPYARD_API_KEY_PATH"},
	},
	&cli.StringFlag{
		Name:    "key-id",
		Usage:   "API key ID; use with --key-file instead of an API key JSON file",
		EnvVars: []string{"SHIPYARD_KEY_ID"},
	},
	&cli.StringFlag{
		Name:    "issuer-id",
		Usage:   "API key issuer ID (omit for individual keys)",
		EnvVars: []string{"SHIPYARD_ISSUER_ID"},
	},
	&cli.StringFlag{
		Name:    "key-file",
		Usage:   "path to the .p8 private key file",
		EnvVars: []string{"SHIPYARD_KEY_FILEPATH"},
	},
	&cli.BoolFlag{
		Name:    "in-house",
		Usage:   "key belongs to an enterprise program account",
		EnvVars: []string{"SHIPYARD_IN_HOUSE"},
	},
	&cli.StringFlag{
		Name:    "api-host",
		Usage:   "override the API base URL (eg, for a local mock server)",
		EnvVars: []string{"SHIPYARD_API_HOST"},
	},
	&cli.StringFlag{
		Name:    "team-id",
		Usage:   "team to act as",
		EnvVars: []string{"SHIPYARD_TEAM_ID"},
	},
}

func run(args []string) error {
	return newApp(os.Stdout).Run(args)
}

func newApp(stdout io.Writer) *cli.App {
	app := &cli.App{
		Name:    "ascli",
		Usage:   "App Store Connect API command-line client",
		Version: versioninfo.Short(),
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				Value:   "warn",
				EnvVars: []string{"SHIPYARD_LOG_LEVEL", "LOG_LEVEL"},
			},
		},
		Before: func(cctx *cli.Context) error {
			configLogger(cctx, os.Stderr)
			return nil
		},
	}
	app.Commands = []*cli.Command{
		cmdGet,
		cmdPost,
		cmdPatch,
		cmdDelete,
		cmdToken,
	}
	return app
}
