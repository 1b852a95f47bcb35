package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/bluesky-social/shipyard/ascapi"

	"github.com/urfave/cli/v2"
)

var requestFlags = []cli.Flag{
	&cli.IntFlag{
		Name:  "max-attempts",
		Usage: "total attempts per request, including retries (0 for the default)",
	},
}

var bodyFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "data",
		Aliases: []string{"d"},
		Usage:   "JSON request body (otherwise read from stdin, if piped)",
	},
}

var cmdGet = &cli.Command{
	Name:      "get",
	Usage:     "fetch an API resource or collection",
	ArgsUsage: `<path-or-url> [key=value...]`,
	Flags: concatFlags(authFlags, requestFlags, []cli.Flag{
		&cli.BoolFlag{
			Name:  "all-pages",
			Usage: "follow pagination links and print every page's data",
		},
		&cli.IntFlag{
			Name:  "max-pages",
			Usage: "with --all-pages, stop after this many pages (0 for no limit)",
		},
	}),
	Action: runGet,
}

var cmdPost = &cli.Command{
	Name:      "post",
	Usage:     "create an API resource",
	ArgsUsage: `<path-or-url>`,
	Flags:     concatFlags(authFlags, requestFlags, bodyFlags),
	Action:    runWrite(http.MethodPost),
}

var cmdPatch = &cli.Command{
	Name:      "patch",
	Usage:     "update an API resource",
	ArgsUsage: `<path-or-url>`,
	Flags:     concatFlags(authFlags, requestFlags, bodyFlags),
	Action:    runWrite(http.MethodPatch),
}

var cmdDelete = &cli.Command{
	Name:      "delete",
	Usage:     "delete an API resource or relationship",
	ArgsUsage: `<path-or-url> [key=value...]`,
	Flags:     concatFlags(authFlags, requestFlags, bodyFlags),
	Action:    runDelete,
}

func concatFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func requestOptions(cctx *cli.Context) []ascapi.RequestOption {
	var opts []ascapi.RequestOption
	if n := cctx.Int("max-attempts"); n > 0 {
		opts = append(opts, ascapi.WithMaxAttempts(n))
	}
	return opts
}

func runGet(cctx *cli.Context) error {
	ctx := context.Background()
	target := cctx.Args().First()
	if target == "" {
		return fmt.Errorf("need to provide API path as an argument")
	}
	params, err := parseParams(cctx.Args().Tail())
	if err != nil {
		return err
	}

	client, err := loadClient(cctx)
	if err != nil {
		return err
	}

	resp, err := client.Get(ctx, target, params, requestOptions(cctx)...)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if !cctx.Bool("all-pages") {
		return printJSON(cctx.App.Writer, resp.Body)
	}

	pages, err := resp.AllPages(ctx, cctx.Int("max-pages"))
	if err != nil {
		return err
	}
	var data []any
	for _, p := range pages {
		switch d := p.Data().(type) {
		case []any:
			data = append(data, d...)
		case nil:
		default:
			data = append(data, d)
		}
	}
	return printJSON(cctx.App.Writer, map[string]any{"data": data})
}

func runWrite(method string) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		ctx := context.Background()
		target := cctx.Args().First()
		if target == "" {
			return fmt.Errorf("need to provide API path as an argument")
		}
		body, err := readBody(cctx, os.Stdin)
		if err != nil {
			return err
		}
		if body == nil {
			return fmt.Errorf("need to provide a JSON request body")
		}

		client, err := loadClient(cctx)
		if err != nil {
			return err
		}

		var resp *ascapi.Response
		switch method {
		case http.MethodPost:
			resp, err = client.Post(ctx, target, body, requestOptions(cctx)...)
		default:
			resp, err = client.Patch(ctx, target, body, requestOptions(cctx)...)
		}
		if err != nil {
			return err
		}
		if resp == nil {
			return nil
		}
		return printJSON(cctx.App.Writer, resp.Body)
	}
}

func runDelete(cctx *cli.Context) error {
	ctx := context.Background()
	target := cctx.Args().First()
	if target == "" {
		return fmt.Errorf("need to provide API path as an argument")
	}
	params, err := parseParams(cctx.Args().Tail())
	if err != nil {
		return err
	}
	body, err := readBody(cctx, os.Stdin)
	if err != nil {
		return err
	}

	client, err := loadClient(cctx)
	if err != nil {
		return err
	}

	var reqBody any
	if body != nil {
		reqBody = body
	}
	resp, err := client.Delete(ctx, target, params, reqBody, requestOptions(cctx)...)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return printJSON(cctx.App.Writer, resp.Body)
}
