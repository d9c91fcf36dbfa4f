package positionfeed

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/stoptrack/stoptrack/pkg/feeds"
	"github.com/stoptrack/stoptrack/pkg/monitoring"
	"github.com/stoptrack/stoptrack/pkg/redis_client"
	"github.com/stoptrack/stoptrack/pkg/stopwriter"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "position-feed",
		Usage: "Polls agency GTFS-RT feeds and publishes vehicle positions",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "poll every registered agency feed",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Value: defaultPollInterval,
						Usage: "time between polls of each feed",
					},
					&cli.StringFlag{
						Name:  "metrics-listen",
						Value: ":2114",
						Usage: "listen target for the metrics server",
					},
				},
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}

					feedList, err := feeds.GetRegisteredFeeds()
					if err != nil {
						return err
					}

					queue, err := redis_client.QueueConnection.OpenQueue(stopwriter.QueueName)
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

					var pollers conc.WaitGroup
					for _, feed := range feedList {
						poller := NewPoller(feed, queue, c.Duration("interval"))
						pollers.Go(func() {
							poller.Run(ctx)
						})
					}
					pollers.Wait()

					return nil
				},
			},
		},
	}
}
