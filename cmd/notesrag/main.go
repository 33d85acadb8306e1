package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notesrag/internal"
	"github.com/starford/notesrag/internal/ingest"
	"github.com/starford/notesrag/internal/mcpserver"
	"github.com/starford/notesrag/internal/parser"
	pkgconfig "github.com/starford/notesrag/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	cfg.Identity.Seed = cmd.String("seed")
	path := cmd.String("config")
	found, err := pkgconfig.LoadOptional(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", path))
	}
	// the flag wins over the file
	if seed := cmd.String("seed"); seed != "" {
		cfg.Identity.Seed = seed
	}
	return cfg, nil
}

func requireSeed(cfg *internal.Config) error {
	if strings.TrimSpace(cfg.Identity.Seed) == "" {
		return errors.New("identity seed is required: set identity.seed or pass --seed")
	}
	return nil
}

// openApp wires the application with logs on stderr so stdout carries only
// command output.
func openApp(cmd *cli.Command) (*internal.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := requireSeed(cfg); err != nil {
		return nil, err
	}
	return internal.NewApp(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func ingestFiles(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("usage: notesrag ingest <file>...")
	}
	files := make([]ingest.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		mimeType := ingest.DefaultMimeType
		if parser.IsMarkdown(p, "") {
			mimeType = "text/markdown"
		}
		files = append(files, ingest.File{Name: filepath.Base(p), MimeType: mimeType, Text: string(data)})
	}

	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.Service.Ingest(ctx, app.Config.Identity.Seed, files)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func ask(ctx context.Context, cmd *cli.Command) error {
	question := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("usage: notesrag ask <question>")
	}
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ans, err := app.Service.Ask(ctx, app.Config.Identity.Seed, question, int(cmd.Int("match-count")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return printJSON(ans)
	}
	fmt.Println(ans.Answer)
	if len(ans.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range ans.Sources {
			fmt.Printf("  - %s (%s)\n", s.Title, s.NoteID)
		}
	}
	return nil
}

func serveMCP(_ context.Context, cmd *cli.Command) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	return mcpserver.New(app.Service, app.Config.Identity.Seed, version).ServeStdio()
}

func main() {
	cmd := &cli.Command{
		Name:    "notesrag",
		Usage:   "Ask questions about your notes: chunking, embeddings, retrieval and cited answers",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "seed",
				Usage:   "Identity seed for ingest, ask, mcp and the inbox (overrides identity.seed)",
				Sources: cli.EnvVars("NOTESRAG_SEED"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:      "ingest",
				Usage:     "Ingest text or Markdown files for the configured identity",
				ArgsUsage: "<file>...",
				Action:    ingestFiles,
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the configured identity's notes",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "match-count", Aliases: []string{"k"}, Usage: "Chunks to retrieve (0 uses retrieval.match_limit)"},
					&cli.BoolFlag{Name: "json", Usage: "Print the answer and sources as JSON"},
				},
				Action: ask,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
