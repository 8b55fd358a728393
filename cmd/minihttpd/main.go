// Package main serves a directory tree over HTTP/1.0.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/f4ah6o/minihttpd/internal/config"
	"github.com/f4ah6o/minihttpd/internal/dispatch"
	"github.com/f4ah6o/minihttpd/internal/fsys"
	"github.com/f4ah6o/minihttpd/internal/httpmsg"
	"github.com/f4ah6o/minihttpd/internal/logging"
	"github.com/f4ah6o/minihttpd/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		return err
	}

	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}
	if fi, err := os.Stat(absRoot); err != nil || !fi.IsDir() {
		return fmt.Errorf("directory does not exist: %s", absRoot)
	}

	log := logging.New(stderr, cfg.Verbose)
	d := dispatch.New(fsys.New(absRoot), dispatch.WithLogger(log))

	srv := server.New(d)
	srv.Logger = log
	srv.ReadTimeout = time.Duration(cfg.ReadTimeout)
	srv.MaxRequestBytes = cfg.MaxRequestBytes

	fmt.Fprintf(stderr, "%s %s %s at %s\n",
		color.CyanString("%s/%s", httpmsg.ServerName, httpmsg.ServerVersion),
		color.New(color.Bold).Sprint("serving"),
		absRoot,
		color.GreenString("http://%s/", cfg.ListenAddr()))
	fmt.Fprintln(stderr, "Press Ctrl+C to stop")

	return srv.ListenAndServe(ctx, cfg.ListenAddr())
}

// parseConfig builds the configuration from defaults, the optional -config
// file, and then any flags given explicitly on the command line.
func parseConfig(args []string, stderr io.Writer) (config.Config, error) {
	def := config.Default()

	fs := flag.NewFlagSet(httpmsg.ServerName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a .toml or .yaml config file")
	addr := fs.String("addr", def.Addr, "Address to bind")
	port := fs.Int("p", def.Port, "Port to serve on")
	dir := fs.String("d", def.Root, "Directory to serve")
	verbose := fs.Bool("v", def.Verbose, "Print debugging messages")
	if err := fs.Parse(args); err != nil {
		return def, err
	}

	cfg := def
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return def, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "p":
			cfg.Port = *port
		case "d":
			cfg.Root = *dir
		case "v":
			cfg.Verbose = *verbose
		}
	})

	return cfg, cfg.Validate()
}
