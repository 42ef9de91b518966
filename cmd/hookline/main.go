package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hookline/hookline/internal/app"
	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/version"
)

func main() {
	envFileFlag := &cli.StringFlag{
		Name:  "env-file",
		Usage: "load environment variables from `FILE` before reading the environment",
		Value: ".env",
	}

	cmd := &cli.Command{
		Name:    "hookline",
		Usage:   "Hookline - webhook delivery service",
		Version: version.Version(),
		Flags:   []cli.Flag{envFileFlag},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the API server and dispatch consumer",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return app.New(cfg).Run(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Commands: []*cli.Command{
					{
						Name:  "up",
						Usage: "Apply pending migrations",
						Action: func(ctx context.Context, c *cli.Command) error {
							cfg, err := loadConfig(c)
							if err != nil {
								return err
							}
							schemaVersion, err := app.New(cfg).MigrateUp(ctx)
							if err != nil {
								return err
							}
							fmt.Printf("schema at version %d\n", schemaVersion)
							return nil
						},
					},
					{
						Name:  "down",
						Usage: "Roll back all migrations",
						Action: func(ctx context.Context, c *cli.Command) error {
							cfg, err := loadConfig(c)
							if err != nil {
								return err
							}
							return app.New(cfg).MigrateDown(ctx)
						},
					},
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return cli.ShowAppHelp(c)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Command) (*config.Config, error) {
	return config.Parse(config.WithEnvFile(c.String("env-file")))
}
