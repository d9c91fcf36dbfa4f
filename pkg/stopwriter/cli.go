package stopwriter

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stoptrack/stoptrack/pkg/database"
	"github.com/stoptrack/stoptrack/pkg/eventstore"
	"github.com/stoptrack/stoptrack/pkg/feeds"
	"github.com/stoptrack/stoptrack/pkg/monitoring"
	"github.com/stoptrack/stoptrack/pkg/redis_client"
	"github.com/stoptrack/stoptrack/pkg/schedule"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "stop-writer",
		Usage: "Detects stop arrivals from vehicle positions and persists delay records",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run an instance of the stop event detector",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-listen",
						Value: ":2113",
						Usage: "listen target for the metrics server",
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}

					feedList, err := feeds.GetRegisteredFeeds()
					if err != nil {
						return err
					}

					locations := map[string]*time.Location{}
					for _, feed := range feedList {
						locations[feed.Agency] = feed.Location()
					}

					detector := NewDetector(
						schedule.NewPostgresStore(database.GlobalPool),
						eventstore.NewPostgresStore(database.GlobalPool),
						NewVehicleStateRepository(redis_client.Client),
						NewSavedSequencesRepository(redis_client.Client),
						locations,
					)

					consumer, err := StartConsumer(detector)
					if err != nil {
						return err
					}

					monitoring.StartServer(c.String("metrics-listen"))

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					// Finish in-flight deliveries, then drain the workers
					<-redis_client.QueueConnection.StopAllConsuming()
					consumer.Stop()

					return nil
				},
			},
		},
	}
}
