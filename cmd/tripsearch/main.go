package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/neexbeast/tripsync/internal/search"
)

func main() {
	app := &cli.Command{
		Name:  "tripsearch",
		Usage: "Search destinations against a running tripsync server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Base URL of the tripsync server",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("TRIPSYNC_SERVER"),
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: search.DefaultLimit,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			queryCommand(),
			interactiveCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Run a single search and print the results",
		ArgsUsage: "<text>",
		Action: func(ctx context.Context, c *cli.Command) error {
			o := newOrchestrator(c, search.WithAutoSearch(false))
			defer o.Close()
			return runQuery(ctx, o, c.Args().First(), os.Stdout)
		},
	}
}

func interactiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "interactive",
		Usage: "Search as you type; each input line replaces the query",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period before a query is sent",
				Value: search.DefaultDebounce,
			},
			&cli.IntFlag{
				Name:  "min-length",
				Usage: "Shortest query that is sent to the server",
				Value: search.DefaultMinQueryLength,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			r := newRenderer(os.Stdout)
			o := newOrchestrator(c,
				search.WithDebounce(c.Duration("debounce")),
				search.WithMinQueryLength(int(c.Int("min-length"))),
				search.WithOnChange(r.Render),
			)
			defer o.Close()
			return runInteractive(ctx, o, os.Stdin, os.Stdout)
		},
	}
}

func newOrchestrator(c *cli.Command, opts ...search.Option) *search.Orchestrator {
	client := search.NewHTTPClient(c.String("server"), nil)
	base := []search.Option{
		search.WithLimit(int(c.Int("limit"))),
		search.WithRequestTimeout(search.DefaultRequestTimeout),
		search.WithLogger(newLogger(c.Bool("debug"))),
	}
	return search.New(client, append(base, opts...)...)
}
