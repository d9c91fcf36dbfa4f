package api

import (
	"time"

	"github.com/stoptrack/stoptrack/pkg/database"
	"github.com/stoptrack/stoptrack/pkg/redis_client"
	"github.com/stoptrack/stoptrack/pkg/stats"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "stats-api",
		Usage: "Serves aggregate delay statistics over HTTP",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the stats API server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen target for the HTTP server",
					},
					&cli.StringFlag{
						Name:  "timezone",
						Value: "UTC",
						Usage: "timezone that anchors named periods like TODAY",
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}

					location, err := time.LoadLocation(c.String("timezone"))
					if err != nil {
						return err
					}

					service := stats.NewService(
						stats.NewPostgresRepository(database.GlobalPool),
						stats.NewResponseCache(redis_client.Client),
					)

					return NewServer(service, location).Listen(c.String("listen"))
				},
			},
		},
	}
}
