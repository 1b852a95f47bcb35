package main

import (
	"fmt"
	"time"

	"github.com/bluesky-social/shipyard/ascapi"

	"github.com/urfave/cli/v2"
)

var cmdToken = &cli.Command{
	Name:  "token",
	Usage: "print a freshly signed API token (JWT)",
	Flags: concatFlags(authFlags, []cli.Flag{
		&cli.IntFlag{
			Name:  "duration",
			Usage: "token lifetime in seconds (capped at 1200)",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "also print the key ID and expiry time",
		},
	}),
	Action: runToken,
}

func runToken(cctx *cli.Context) error {
	key, err := loadAPIKey(cctx)
	if err != nil {
		return err
	}
	if d := cctx.Int("duration"); d > 0 {
		key.Duration = d
	}
	tok, err := ascapi.NewAPIKeyToken(*key)
	if err != nil {
		return err
	}

	if cctx.Bool("verbose") {
		fmt.Fprintf(cctx.App.Writer, "key_id: %s\n", tok.KeyID)
		fmt.Fprintf(cctx.App.Writer, "expires: %s\n", tok.ExpiresAt().UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(cctx.App.Writer, tok.Text())
	return nil
}
