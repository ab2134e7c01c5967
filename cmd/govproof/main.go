package main

import (
	"fmt"
	"os"
	"time"

	"github.com/axiomesh/govproof/repo"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "govproof"
	app.Usage = "Evaluate governance votes against on-chain voting power"
	app.Compiled = time.Now()

	cli.VersionPrinter = func(c *cli.Context) {
		printVersion()
	}

	// global flags
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "repo",
			Usage: "govproof storage repo path",
		},
	}

	app.Before = func(ctx *cli.Context) error {
		return repo.LoadDotEnv()
	}

	app.Commands = []*cli.Command{
		configCMD,
		voteCMD,
		executeCMD,
		replayCMD,
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "govproof version",
			Action: func(ctx *cli.Context) error {
				printVersion()
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
