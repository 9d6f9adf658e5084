// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sbinet.org/x/dmd/dmdsrv"
	"sbinet.org/x/dmd/internal/config"
)

type serveCmd struct {
	Config string `short:"c" required:"" help:"YAML configuration file." type:"path"`
	Addr   string `help:"[host]:port to serve (overrides the configuration)."`
	Check  bool   `help:"Open the configured recordings and exit."`
}

func (cmd *serveCmd) Run(g *Globals) error {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		cfg.Server.Addr = cmd.Addr
	}
	if g.Lib == "" {
		g.Lib = cfg.Library.Path
	}
	if g.Verbose {
		cfg.Logging.Level = "debug"
	}
	logger := cfg.Logging.Logger(os.Stderr)

	api, err := g.reader()
	if err != nil {
		return err
	}

	srv, err := dmdsrv.Open(cfg, api, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	if cmd.Check {
		fmt.Fprintf(g.out, "%s: %d recordings\n", cmd.Config, len(cfg.Recordings))
		return srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = serve(ctx, cfg.Server.Addr, srv, logger)
	if err != nil {
		return err
	}
	return srv.Close()
}

func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	hsrv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", slog.String("address", addr))
		err := hsrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("could not serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := hsrv.Shutdown(sctx)
	if err != nil {
		return fmt.Errorf("could not shutdown HTTP server: %w", err)
	}
	return <-errc
}
