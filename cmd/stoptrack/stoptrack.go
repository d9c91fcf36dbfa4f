package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stoptrack/stoptrack/pkg/dataimporter"
	"github.com/stoptrack/stoptrack/pkg/positionfeed"
	statsapi "github.com/stoptrack/stoptrack/pkg/stats/api"
	"github.com/stoptrack/stoptrack/pkg/stopwriter"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	godotenv.Load()

	if os.Getenv("STOPTRACK_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("STOPTRACK_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "stoptrack",
		Description: "Single binary of truth for stoptrack - runs all the services",

		Commands: []*cli.Command{
			dataimporter.RegisterCLI(),
			positionfeed.RegisterCLI(),
			stopwriter.RegisterCLI(),
			statsapi.RegisterCLI(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
