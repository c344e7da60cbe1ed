package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/guseggert/wrapperconsole/config"
	"github.com/guseggert/wrapperconsole/internal/logging"
	"github.com/guseggert/wrapperconsole/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "supervisor",
		Usage: "run a server process and serve its console",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the config file. Defaults to the nearest config.yml, then to defaults and MSW_* env vars only.",
				EnvVars: []string{"MSW_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("config")
			if path == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("getting working dir: %w", err)
				}
				if path, err = config.Locate(wd); err != nil {
					return fmt.Errorf("locating config: %w", err)
				}
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			logger, closeLog, err := logging.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer closeLog()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := supervisor.NewMetrics(reg)

			hub := supervisor.NewHub(
				supervisor.WithHubLogger(logger),
				supervisor.WithHubMetrics(metrics),
				supervisor.WithHistory(cfg.Web.History),
				supervisor.WithClientQueue(cfg.Web.ClientQueue),
			)

			wrapperOpts := []supervisor.WrapperOption{
				supervisor.WithWrapperLogger(logger),
				supervisor.WithWrapperMetrics(metrics),
			}
			if cfg.Process.OutputLog != "" {
				out := logging.RotatingWriter(cfg.Process.OutputLog, cfg.Log)
				defer out.Close()
				wrapperOpts = append(wrapperOpts, supervisor.WithOutputLog(out))
			}
			wrapper, err := supervisor.NewWrapper(cfg.Process, hub, wrapperOpts...)
			if err != nil {
				return fmt.Errorf("building wrapper: %w", err)
			}

			server := supervisor.NewServer(hub, wrapper,
				supervisor.WithLogger(logger),
				supervisor.WithListenAddr(cfg.Web.Addr),
				supervisor.WithPrefix(cfg.Web.Prefix),
				supervisor.WithRegistry(reg, metrics),
			)

			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			group, ctx := errgroup.WithContext(ctx)
			group.Go(func() error { return wrapper.Run(ctx) })
			group.Go(func() error { return server.Run(ctx) })
			err = group.Wait()
			logger.Sugar().Infow("supervisor exited", "Error", err)
			return err
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
