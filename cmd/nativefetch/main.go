// Command nativefetch runs fetches and cookie operations described as JSON.
//
// One-shot usage reads the call's arguments from stdin:
//
//	echo '{"url":"https://example.com","options":{"sslPinning":{"certs":["api"]}}}' |
//		nativefetch -config nativefetch.yaml fetch
//
// The session command keeps one engine, and its cookies, alive across a
// stream of newline-delimited calls:
//
//	{"id": 1, "call": "fetch", "args": {...}}
//	{"id": 2, "call": "cookies", "args": {"domain": "example.com"}}
//
// Each call answers with one line carrying the same id.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errCallFailed) {
			fmt.Fprintln(os.Stderr, "nativefetch:", err)
		}
		stop()
		os.Exit(1)
	}
}

// errCallFailed signals a failure already written to stdout as JSON.
var errCallFailed = errors.New("call failed")

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("nativefetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: nativefetch [-config file] fetch|cookies|remove-cookie|clear-cookies|logging|session")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one command expected")
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("closing", "error", err)
		}
	}()

	cmd := fs.Arg(0)
	if cmd == "session" {
		return app.session(ctx, stdin, stdout)
	}

	in, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("reading call: %w", err)
	}

	out, ok := app.dispatch(ctx, cmd, in)
	if _, err := fmt.Fprintf(stdout, "%s\n", out); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	if !ok {
		return errCallFailed
	}

	return nil
}
