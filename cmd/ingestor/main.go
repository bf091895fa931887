// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ingestor",
		Usage: "Document ingestion core for due diligence research",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file if it exists",
				Value: ".env",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Ingest raw documents from a JSON lines file",
				Action: ingestCommand,
				Flags:  ingestFlags(),
			},
			{
				Name:   "status",
				Usage:  "Show the processing state of a document",
				Action: statusCommand,
				Flags: []cli.Flag{
					dbFlag(),
					postgresFlag(),
					&cli.StringFlag{
						Name:     "source-id",
						Aliases:  []string{"s"},
						Usage:    "Source id of the document",
						Required: true,
					},
				},
			},
			{
				Name:   "coverage",
				Usage:  "Show per-company coverage and boost factors",
				Action: coverageCommand,
				Flags:  []cli.Flag{dbFlag(), postgresFlag()},
			},
			{
				Name:   "stats",
				Usage:  "Show document counts per stage and recent ingestion runs",
				Action: statsCommand,
				Flags: []cli.Flag{
					dbFlag(),
					postgresFlag(),
					&cli.IntFlag{
						Name:  "runs",
						Usage: "Number of recent runs to list",
						Value: 10,
					},
				},
			},
			{
				Name:   "validate",
				Usage:  "Check the chunks of every stored document",
				Action: validateCommand,
				Flags: append([]cli.Flag{
					dbFlag(),
					postgresFlag(),
					&cli.IntFlag{
						Name:  "max-issues",
						Usage: "Number of issues to print, 0 for all",
						Value: 20,
					},
				}, chunkingFlags()...),
			},
			{
				Name:   "reembed",
				Usage:  "Regenerate the vectors of every stored document",
				Action: reembedCommand,
				Flags: []cli.Flag{
					dbFlag(),
					postgresFlag(),
					&cli.StringFlag{
						Name:    "embedding-host",
						Usage:   "Embedding service host URL",
						Value:   "http://localhost:11434/v1",
						EnvVars: []string{"EMBEDDING_HOST"},
					},
					&cli.StringFlag{
						Name:     "embedding-model",
						Usage:    "Embedding model name",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "api-token",
						Usage:   "API token for hosted model providers",
						Value:   "none",
						EnvVars: []string{"OPENAI_API_KEY"},
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks embedded per call",
						Value: 64,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
				},
			},
			{
				Name:   "reconstruct",
				Usage:  "Print the chunks of a document with tables restored",
				Action: reconstructCommand,
				Flags: []cli.Flag{
					dbFlag(),
					postgresFlag(),
					&cli.StringFlag{
						Name:     "source-id",
						Aliases:  []string{"s"},
						Usage:    "Source id of the document",
						Required: true,
					},
				},
			},
		},
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to BadgerDB database directory",
		Required: true,
	}
}

func postgresFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "postgres",
		Usage:   "Keep processing state and coverage in this Postgres database",
		EnvVars: []string{"INGEST_POSTGRES_URL"},
	}
}

// chunkingFlags are shared by ingest and validate.
func chunkingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "max-tokens",
			Usage: "Maximum tokens per chunk",
			Value: 800,
		},
		&cli.IntFlag{
			Name:  "min-tokens",
			Usage: "Minimum tokens before a chunk may end at a boundary",
			Value: 50,
		},
		&cli.IntFlag{
			Name:  "overlap",
			Usage: "Tokens repeated at the start of the next chunk",
			Value: 100,
		},
		&cli.StringFlag{
			Name:  "tokenizer",
			Usage: "Token counter (words, cl100k or a tiktoken encoding)",
			Value: "words",
		},
	}
}

func ingestFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Usage:    "JSON lines file of raw documents, - for stdin",
			Required: true,
		},
		dbFlag(),
		postgresFlag(),
		&cli.StringFlag{
			Name:    "redis",
			Usage:   "Serialize coverage updates with locks in this Redis server (host:port)",
			EnvVars: []string{"INGEST_REDIS_ADDR"},
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address while ingesting",
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			Value:   "http://localhost:11434/v1",
			EnvVars: []string{"EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Value:   "embeddinggemma",
			EnvVars: []string{"EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "summarizer-host",
			Usage:   "Table summarizer host URL",
			Value:   "http://localhost:11434/v1",
			EnvVars: []string{"SUMMARIZER_HOST"},
		},
		&cli.StringFlag{
			Name:    "summarizer-model",
			Usage:   "Table summarizer model name",
			Value:   "qwen2.5:3b",
			EnvVars: []string{"SUMMARIZER_MODEL"},
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "API token for hosted model providers",
			Value:   "none",
			EnvVars: []string{"OPENAI_API_KEY"},
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Attempts per document before it is marked permanently failed",
			Value: 3,
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Documents processed concurrently",
			Value: 4,
		},
		&cli.DurationFlag{
			Name:  "doc-timeout",
			Usage: "Time budget for a single document",
			Value: 5 * time.Minute,
		},
		&cli.IntFlag{
			Name:  "summaries-per-minute",
			Usage: "Rate limit for table summary calls, 0 for unlimited",
			Value: 0,
		},
	}
	return append(flags, chunkingFlags()...)
}

func setup(c *cli.Context) error {
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return setupLogger(c)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
