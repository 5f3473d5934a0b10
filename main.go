package main

import (
	"os"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/urfave/cli/v2"

	"github.com/orenmazor/jobservitor/cmd"
)

func main() {
	app := &cli.App{
		Name:  "jobservitor",
		Usage: "Distributed batch job scheduling and execution service",
		Commands: []*cli.Command{
			cmd.ServeCommand,
			cmd.WorkerCommand,
			cmd.HealthCheckCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		logging.Log.WithError(err).Fatal("runtime error")
	}
}
