package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/committer/internal/api"
	"github.com/samcharles93/committer/internal/config"
	"github.com/samcharles93/committer/internal/generator"
	"github.com/samcharles93/committer/internal/logger"
	"github.com/samcharles93/committer/internal/metrics"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the commit-message HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (default server_address)",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := settingsFrom(ctx)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)
			if !cmd.IsSet("addr") {
				addr = config.String(s.ServerAddress)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			backend, err := buildBackend(s, log, m)
			if err != nil {
				return err
			}
			server := api.NewServer(api.Config{
				Generator: &generator.Dispatcher{Backend: backend, Scopes: s.Scopes, Logger: log, Metrics: m},
				Backend:   backend.Name(),
				Gatherer:  reg,
				Logger:    log,
			})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "backend", backend.Name())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
