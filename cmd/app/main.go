package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notechain/internal"
	pkgconfig "github.com/starford/notechain/pkg/config"
)

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(configPath, "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "notechain",
		Usage:  "Rich-text note store that splits oversized notes into linked parts",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, inbox watcher and purge worker (default)",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "Upgrade stored notes to the latest data schema",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := loadOptions(cmd)
					if err != nil {
						return err
					}
					return internal.RunMigrate(ctx, os.Stdout, opts...)
				},
			},
			{
				Name:  "repair",
				Usage: "Truncate notes whose bodies exceed the store read limit",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := loadOptions(cmd)
					if err != nil {
						return err
					}
					return internal.RunRepair(ctx, os.Stdout, opts...)
				},
			},
			{
				Name:      "import",
				Usage:     "Import JSON, YAML or Markdown backup files",
				ArgsUsage: "FILE...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.NArg() == 0 {
						return fmt.Errorf("import: at least one file is required")
					}
					opts, err := loadOptions(cmd)
					if err != nil {
						return err
					}
					return internal.RunImport(ctx, cmd.Args().Slice(), os.Stdout, opts...)
				},
			},
			{
				Name:  "export",
				Usage: "Write a JSON backup of every note",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (stdout when empty)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := loadOptions(cmd)
					if err != nil {
						return err
					}
					return internal.RunExport(ctx, cmd.String("output"), os.Stdout, opts...)
				},
			},
			{
				Name:  "mcp",
				Usage: "Serve MCP tools over stdio",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := loadOptions(cmd)
					if err != nil {
						return err
					}
					return internal.RunMCP(ctx, opts...)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
