package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/ldi/tend/internal/config"
	"github.com/ldi/tend/internal/db"
	"github.com/ldi/tend/internal/graph"
	"github.com/ldi/tend/internal/mcp"
	"github.com/ldi/tend/internal/ui"
	"github.com/ldi/tend/pkg/logutils"
	"github.com/ldi/tend/pkg/models"
)

var version = "dev"

type flags struct {
	ConfigPath   string
	DBPath       string
	SnapshotPath string
	LogLevel     string
	LogFile      string
}

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		cfg       *config.Config
	)

	f := &flags{}

	app := &cli.Command{
		Name:    "tend",
		Usage:   "A GTD task manager with recurring tasks and dependency tracking",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("TEND_CONFIG"),
				Destination: &f.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "db-path",
				Usage:       "path to database file",
				Sources:     cli.EnvVars("TEND_DB_PATH"),
				Destination: &f.DBPath,
			},
			&cli.StringFlag{
				Name:        "snapshot-path",
				Usage:       "path to snapshot file",
				Sources:     cli.EnvVars("TEND_SNAPSHOT_PATH"),
				Destination: &f.SnapshotPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal)",
				Sources:     cli.EnvVars("TEND_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to stderr)",
				Sources:     cli.EnvVars("TEND_LOG_FILE"),
				Destination: &f.LogFile,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			cfg, err = config.Load(f.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}

			// Flags and env override the config file.
			if f.DBPath != "" {
				cfg.DBPath = f.DBPath
			}
			if f.SnapshotPath != "" {
				cfg.SnapshotPath = f.SnapshotPath
			}
			if f.LogLevel != "" {
				cfg.Log.Level = f.LogLevel
			}
			if f.LogFile != "" {
				cfg.Log.File = f.LogFile
			}

			logger, closer, err := logutils.New(cfg.Log.Level, cfg.Log.File)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app.Commands = []*cli.Command{
		initCmd(&cfg),
		mcpCmd(&cfg),
		addCmd(&cfg),
		listCmd(&cfg),
		readyCmd(&cfg),
		completeCmd(&cfg),
		statusCmd(&cfg),
		graphCmd(&cfg),
		projectsCmd(&cfg),
		snapshotCmd(&cfg),
	}

	// No subcommand opens the interactive menu.
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'tend --help' for usage", c.Args().First())
		}
		selected, err := ui.RunMenu()
		if err != nil {
			return fmt.Errorf("run menu: %w", err)
		}
		if selected == "" {
			return nil
		}
		for _, cmd := range c.Commands {
			if cmd.Name == selected {
				return cmd.Run(ctx, []string{selected})
			}
		}
		return fmt.Errorf("unknown command %q", selected)
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openDB opens and initializes the database per the resolved config.
func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.AutoSnapshot {
		database.EnableAutoSnapshot(cfg.SnapshotPath)
	}
	return database, nil
}

func initCmd(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize the database, importing a snapshot if one exists",
		Action: func(ctx context.Context, c *cli.Command) error {
			dataDir := filepath.Dir((*cfg).DBPath)
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			fmt.Printf("✓ Created %s/\n", dataDir)

			database, err := openDB(ctx, *cfg)
			if err != nil {
				return err
			}
			defer database.Close()
			fmt.Printf("✓ Initialized database at %s\n", (*cfg).DBPath)

			if _, err := os.Stat((*cfg).SnapshotPath); err == nil {
				if err := database.ImportSnapshot(ctx, (*cfg).SnapshotPath); err != nil {
					return fmt.Errorf("failed to import snapshot: %w", err)
				}
				fmt.Printf("✓ Imported snapshot from %s\n", (*cfg).SnapshotPath)
			}

			fmt.Println("✓ Tend initialized successfully")
			return nil
		},
	}
}

func mcpCmd(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the task manager over MCP on stdio",
		Action: func(ctx context.Context, c *cli.Command) error {
			database, err := openDB(ctx, *cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			// MCP sessions always snapshot: the client has no other
			// way to persist a durable export.
			database.EnableAutoSnapshot((*cfg).SnapshotPath)

			log.Info().Str("db", (*cfg).DBPath).Msg("starting MCP server")
			return mcp.Serve(mcp.NewServer(database))
		},
	}
}

func addCmd(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a task to the inbox",
		ArgsUsage: "<title>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Usage: "project ID"},
			&cli.StringFlag{Name: "due", Usage: "due date (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "defer", Usage: "defer date (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "recurrence", Usage: "recurrence tag (daily|weekly|biweekly|monthly|yearly)"},
			&cli.StringFlag{Name: "contexts", Usage: "comma-separated context tags"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			title := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if title == "" {
				return fmt.Errorf("a task title is required")
			}

			database, err := openDB(ctx, *cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			t := &models.Task{
				Title:     title,
				ProjectID: c.String("project"),
				DueDate:   c.String("due"),
				DeferDate: c.String("defer"),
			}
			if rec := c.String("recurrence"); rec != "" {
				t.Recurrence = models.Recurrence{Type: models.RecurrenceType(rec)}
			}
			if contexts := c.String("contexts"); contexts != "" {
				for _, tag := range strings.Split(contexts, ",") {
					if tag = strings.TrimSpace(tag); tag != "" {
						t.Contexts = append(t.Contexts, tag)
					}
				}
			}

			if err := database.CreateTask(ctx, t); err != nil {
				return err
			}
			fmt.Printf("✓ Added '%s' (%s)\n", t.Title, t.ID)
			return nil
		},
	}
}

func listCmd(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "filter by status (inbox, next, waiting, someday, completed)"},
			&cli.StringFlag{Name: "project", Usage: "filter by project ID"},
			&cli.StringFlag{Name: "context", Usage: "filter by context tag"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			database, err := openDB(ctx, *cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			var filter db.TaskFilter
			if s := c.String("status"); s != "" {
				status := models.TaskStatus(s)
				filter.Status = &status
			}
			if p := c.String("project"); p != "" {
				filter.ProjectID = &p
			}
			if tag := c.String("context"); tag != "" {
				filter.Context = &tag
			}

			tasks, err := database.ListTasks(ctx, filter)
			if err != nil {
				return err
			}

			printTasks(tasks)
			return nil
		},
	}
}

func readyCmd(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "ready",
		Usage: "List tasks whose dependencies are all completed",
		Action: func(ctx context.Context, c *cli.Command) error {
			database, err := openDB(ctx, *cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			tasks, err := database.ReadyTasks(ctx)
			if err != nil {
				return err
			}

			// Deferred tasks are not actionable until their defer date.
			printTasks(undeferredTasks(tasks, time.Now()))
			return nil
		},
	}
}

func completeCmd(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:      "complete",
		Usage:     "Complete one or more tasks by ID",
		ArgsUsage: "<id>...",
		Action: func(ctx context.Context, c *cli.Command) error {
			ids := c.Args().Slice()
			if len(ids) == 0 {
				return fmt.Errorf("at least one task ID is required")
			}

			database, err := openDB(ctx, *cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			spawned, err := database.CompleteTasks(ctx, ids)
			for _, next := range spawned {
				fmt.Printf("✓ Next occurrence '%s' due %s (%s)\n", next.Title, next.DueDate, next.ID)
			}
			if err != nil {
				return err
			}
			fmt.Printf("✓ Completed %d task(s)\n", len(ids))
			return nil
		},
	}
}

func statusCmd(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show a summary of the task database",
		Action: func(ctx context.Context, c *cli.Command) error {
			database, err := openDB(ctx, *cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			tasks, err := database.ListTasks(ctx, db.TaskFilter{})
			if err != nil {
				return err
			}
			projects, err := database.ListProjects(ctx)
			if err != nil {
				return err
			}
			ready, err := database.CountReadyTasks(ctx)
			if err != nil {
				return err
			}

			fmt.Println("Tend Status")
			fmt.Println("===========")
			fmt.Printf("Projects:    %d\n", len(projects))
			fmt.Printf("Total Tasks: %d\n", len(tasks))
			fmt.Printf("Ready Tasks: %d\n", ready)

			statusCounts := make(map[models.TaskStatus]int)
			for _, t := range tasks {
				statusCounts[t.Status]++
			}

			fmt.Println("\nTask Breakdown:")
			fmt.Printf("  Inbox:     %d\n", statusCounts[models.TaskStatusInbox])
			fmt.Printf("  Next:      %d\n", statusCounts[models.TaskStatusNext])
			fmt.Printf("  Waiting:   %d\n", statusCounts[models.TaskStatusWaiting])
			fmt.Printf("  Someday:   %d\n", statusCounts[models.TaskStatusSomeday])
			fmt.Printf("  Completed: %d\n", statusCounts[models.TaskStatusCompleted])
			return nil
		},
	}
}

func graphCmd(cfg **config.Config) *cli.Command {
	load := func(ctx context.Context) (*db.DB, *graph.Graph, error) {
		database, err := openDB(ctx, *cfg)
		if err != nil {
			return nil, nil, err
		}
		tasks, err := database.ListTasks(ctx, db.TaskFilter{})
		if err != nil {
			database.Close()
			return nil, nil, err
		}
		return database, graph.New(tasks), nil
	}

	return &cli.Command{
		Name:  "graph",
		Usage: "Inspect the task dependency graph",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show dependency statistics",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "project", Usage: "limit to one project"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					database, g, err := load(ctx)
					if err != nil {
						return err
					}
					defer database.Close()

					stats := g.StatsFor(c.String("project"))
					fmt.Printf("Total Tasks:       %d\n", stats.TotalTasks)
					fmt.Printf("With Dependencies: %d\n", stats.WithDeps)
					fmt.Printf("Blocked:           %d\n", stats.Blocked)
					fmt.Printf("Ready:             %d\n", stats.Ready)
					return nil
				},
			},
			{
				Name:  "levels",
				Usage: "Show each task's dependency depth",
				Action: func(ctx context.Context, c *cli.Command) error {
					database, g, err := load(ctx)
					if err != nil {
						return err
					}
					defer database.Close()

					fmt.Printf("%-6s %-40s %s\n", "LEVEL", "TITLE", "ID")
					fmt.Println(strings.Repeat("-", 86))
					for id, level := range g.Levels() {
						title := ""
						if t := g.Task(id); t != nil {
							title = t.Title
						}
						fmt.Printf("%-6d %-40s %s\n", level, title, id)
					}
					return nil
				},
			},
			{
				Name:  "chains",
				Usage: "Show dependency chains, longest first",
				Action: func(ctx context.Context, c *cli.Command) error {
					database, g, err := load(ctx)
					if err != nil {
						return err
					}
					defer database.Close()

					for _, chain := range g.Chains() {
						fmt.Println(formatChain(g, chain))
					}
					return nil
				},
			},
			{
				Name:  "critical-path",
				Usage: "Show the longest chain of sequentially dependent tasks",
				Action: func(ctx context.Context, c *cli.Command) error {
					database, g, err := load(ctx)
					if err != nil {
						return err
					}
					defer database.Close()

					path := g.CriticalPath()
					if len(path) == 0 {
						fmt.Println("No dependencies recorded.")
						return nil
					}
					fmt.Println(formatChain(g, path))
					return nil
				},
			},
		},
	}
}

func projectsCmd(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "List projects",
		Action: func(ctx context.Context, c *cli.Command) error {
			database, err := openDB(ctx, *cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			projects, err := database.ListProjects(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("%-38s %-30s %s\n", "ID", "TITLE", "STATUS")
			fmt.Println(strings.Repeat("-", 80))
			for _, p := range projects {
				fmt.Printf("%-38s %-30s %s\n", p.ID, p.Title, p.Status)
			}
			return nil
		},
	}
}

func snapshotCmd(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Export or import a JSONL snapshot",
		Commands: []*cli.Command{
			{
				Name:      "export",
				Usage:     "Export the full dataset to a snapshot file",
				ArgsUsage: "[path]",
				Action: func(ctx context.Context, c *cli.Command) error {
					database, err := openDB(ctx, *cfg)
					if err != nil {
						return err
					}
					defer database.Close()

					path := c.Args().First()
					if path == "" {
						path = (*cfg).SnapshotPath
					}
					if err := database.ExportSnapshot(ctx, path); err != nil {
						return err
					}
					fmt.Printf("✓ Snapshot exported to %s\n", path)
					return nil
				},
			},
			{
				Name:      "import",
				Usage:     "Import a snapshot file into the database",
				ArgsUsage: "[path]",
				Action: func(ctx context.Context, c *cli.Command) error {
					database, err := openDB(ctx, *cfg)
					if err != nil {
						return err
					}
					defer database.Close()

					path := c.Args().First()
					if path == "" {
						path = (*cfg).SnapshotPath
					}
					if err := database.ImportSnapshot(ctx, path); err != nil {
						return err
					}
					fmt.Printf("✓ Snapshot imported from %s\n", path)
					return nil
				},
			},
		},
	}
}

// dueSoonDays is the look-ahead window for the "due soon" annotation.
const dueSoonDays = 3

func printTasks(tasks []*models.Task) {
	now := time.Now()
	fmt.Printf("%-38s %-35s %-10s %-10s %s\n", "ID", "TITLE", "STATUS", "DUE", "NOTE")
	fmt.Println(strings.Repeat("-", 104))
	for _, t := range tasks {
		fmt.Printf("%-38s %-35s %-10s %-10s %s\n", t.ID, t.Title, t.Status, t.DueDate, taskNote(t, now))
	}
}

// taskNote annotates a task's date state. Overdue wins over deferral so a
// missed due date is never hidden behind a defer marker.
func taskNote(t *models.Task, now time.Time) string {
	switch {
	case t.IsOverdue(now):
		return "overdue"
	case t.IsDeferred(now):
		return "deferred"
	case t.IsDueSoon(now, dueSoonDays):
		return "due soon"
	}
	return ""
}

// undeferredTasks drops tasks hidden behind a future defer date.
func undeferredTasks(tasks []*models.Task, now time.Time) []*models.Task {
	visible := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.IsDeferred(now) {
			visible = append(visible, t)
		}
	}
	return visible
}

func formatChain(g *graph.Graph, ids []string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if t := g.Task(id); t != nil {
			parts = append(parts, t.Title)
		} else {
			parts = append(parts, id)
		}
	}
	return strings.Join(parts, " -> ")
}
