package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/bluesky-social/shipyard/ascapi"

	"github.com/adrg/xdg"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

const apiKeyConfigPath = "shipyard/api_key.json"

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// Resolves API key credentials from flags: either an explicit key ID and .p8 file, or a JSON key file (by default from the user config directory).
func loadAPIKey(cctx *cli.Context) (*ascapi.APIKey, error) {
	if keyID := cctx.String("key-id"); keyID != "" {
		keyPath := cctx.String("key-file")
		if keyPath == "" {
			return nil, fmt.Errorf("--key-file is required with --key-id")
		}
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, err
		}
		return &ascapi.APIKey{
			KeyID:    keyID,
			IssuerID: cctx.String("issuer-id"),
			Key:      string(keyBytes),
			InHouse:  cctx.Bool("in-house"),
		}, nil
	}

	fPath := cctx.String("api-key-path")
	if fPath == "" {
		var err error
		fPath, err = xdg.SearchConfigFile(apiKeyConfigPath)
		if err != nil {
			return nil, fmt.Errorf("no API key configured (use --key-id and --key-file, or create %s in the user config dir)", apiKeyConfigPath)
		}
	}
	key, err := ascapi.LoadAPIKeyFile(fPath)
	if err != nil {
		return nil, err
	}
	if cctx.Bool("in-house") {
		key.InHouse = true
	}
	return key, nil
}

func loadClient(cctx *cli.Context) (*ascapi.APIClient, error) {
	key, err := loadAPIKey(cctx)
	if err != nil {
		return nil, err
	}
	tok, err := ascapi.NewAPIKeyToken(*key)
	if err != nil {
		return nil, err
	}
	client, err := ascapi.NewAPIClient(ascapi.Config{
		Token:  tok,
		TeamID: cctx.String("team-id"),
		Logger: slog.Default().With("subsystem", "ascapi"),
	})
	if err != nil {
		return nil, err
	}
	if host := cctx.String("api-host"); host != "" {
		client.Host = host
	}
	return client, nil
}

// Parses "key=value" arguments in to query parameters. Bracketed keys (eg, "filter[platform]=IOS") are passed through as-is, and repeated keys are all kept.
func parseParams(args []string) (url.Values, error) {
	params := url.Values{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("parameters must be in key=value form: %s", arg)
		}
		params.Add(k, strings.Trim(v, `"'`))
	}
	return params, nil
}

// Reads a JSON request body from the --data flag, or from stdin when it is not a terminal. Returns nil when there is no body.
func readBody(cctx *cli.Context, stdin *os.File) (json.RawMessage, error) {
	var raw []byte
	if data := cctx.String("data"); data != "" {
		raw = []byte(data)
	} else if stdin != nil && !isatty.IsTerminal(stdin.Fd()) && !isatty.IsCygwinTerminal(stdin.Fd()) {
		var err error
		raw, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("could not read input: %w", err)
		}
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}
