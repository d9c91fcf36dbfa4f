package dataimporter

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stoptrack/stoptrack/pkg/database"
	"github.com/stoptrack/stoptrack/pkg/feeds"
	"github.com/stoptrack/stoptrack/pkg/monitoring"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "data-importer",
		Usage: "Keeps the GTFS-Static schedule snapshot up to date",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "refresh every registered agency feed on a schedule",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Value: 1 * time.Hour,
						Usage: "time between refresh attempts",
					},
					&cli.StringFlag{
						Name:  "metrics-listen",
						Value: ":2112",
						Usage: "listen target for the metrics server",
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}

					feedList, err := feeds.GetRegisteredFeeds()
					if err != nil {
						return err
					}

					monitoring.StartServer(c.String("metrics-listen"))

					ctx, cancel := context.WithCancel(c.Context)
					defer cancel()

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					go func() {
						<-signals
						cancel()
					}()

					RunScheduler(ctx, database.GlobalPool, feedList, c.Duration("interval"))

					return nil
				},
			},
			{
				Name:  "import",
				Usage: "run a one-shot import for a single agency",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "agency",
						Usage:    "agency identifier of the feed to import",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}

					feed, err := feeds.GetFeed(c.String("agency"))
					if err != nil {
						return err
					}

					return ImportAgency(c.Context, database.GlobalPool, feed)
				},
			},
		},
	}
}
