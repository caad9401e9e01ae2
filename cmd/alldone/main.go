package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wolf75222/alldone/internal/config"
	"github.com/wolf75222/alldone/internal/infer"
	"github.com/wolf75222/alldone/internal/logging"
	"github.com/wolf75222/alldone/internal/model"
	"github.com/wolf75222/alldone/internal/reporter"
	"github.com/wolf75222/alldone/internal/snapshot"
	"github.com/wolf75222/alldone/internal/ui"
	"github.com/wolf75222/alldone/internal/viewer"
)

var (
	flagConfig    string
	flagDriver    string
	flagDSN       string
	flagFile      string
	flagWorkspace string
	flagJSON      bool
	flagLogLevel  string

	cfg *config.Config
	log *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "alldone",
		Short: "Critical path and relation checks for task workspaces",
		Long: `alldone loads the tasks and relations of a workspace from a database or a
snapshot file, computes the critical path with a forward/backward pass, and
flags tasks whose status contradicts their blocking relations.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ./alldone.yaml or ~/.config/alldone/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDriver, "db-driver", "", "Database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "Database connection string")
	rootCmd.PersistentFlags().StringVar(&flagFile, "file", "", "Read tasks from a JSON or YAML snapshot instead of the database")
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "Workspace id (default: all tasks)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(pathCmd())
	rootCmd.AddCommand(warningsCmd())
	rootCmd.AddCommand(edgesCmd())
	rootCmd.AddCommand(vizCmd())
	rootCmd.AddCommand(relateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(inferCmd())
	rootCmd.AddCommand(serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// setup loads config and applies flag overrides before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagDriver != "" {
		cfg.Database.Driver = flagDriver
	}
	if flagDSN != "" {
		cfg.Database.DSN = flagDSN
	}
	if flagFile != "" {
		cfg.SnapshotFile = flagFile
	}
	if flagWorkspace != "" {
		cfg.Workspace = flagWorkspace
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	log, err = logging.Init(cfg.LogLevel, cmd.Name() == "serve")
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if flagJSON {
		ui.SetEnabled(false)
	}
	return nil
}

// openStore connects to the configured database.
func openStore(ctx context.Context) (*snapshot.Store, error) {
	store, err := snapshot.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	store.Log = log
	return store, nil
}

// openSource returns the snapshot file source when one is configured and the
// database otherwise. The returned func releases it.
func openSource(ctx context.Context) (snapshot.Source, func(), error) {
	if cfg.SnapshotFile != "" {
		log.WithField("file", cfg.SnapshotFile).Debug("using snapshot file")
		return snapshot.NewFileSource(cfg.SnapshotFile), func() {}, nil
	}
	store, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

// requireStore opens the database for commands that write.
func requireStore(ctx context.Context) (*snapshot.Store, error) {
	if cfg.SnapshotFile != "" {
		return nil, fmt.Errorf("snapshot files are read-only; drop --file to write to the database")
	}
	return openStore(ctx)
}

// analyse loads the workspace snapshot and runs the engine over it.
func analyse(ctx context.Context) (*reporter.Reporter, error) {
	src, closeSrc, err := openSource(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	snap, err := src.Load(ctx, cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	rpt := reporter.New(snap)
	log.WithFields(logrus.Fields{
		"workspace": cfg.Workspace,
		"tasks":     len(snap.Tasks),
		"relations": len(snap.Relations),
		"excluded":  len(rpt.Result.Excluded),
	}).Debug("analysis complete")
	return rpt, nil
}

func pathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the critical path and the schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			rpt, err := analyse(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			rpt.PrintPath(os.Stdout)
			return nil
		},
	}
}

func warningsCmd() *cobra.Command {
	var flagStrict bool

	cmd := &cobra.Command{
		Use:   "warnings [task-id]",
		Short: "Show tasks whose status contradicts their relations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rpt, err := analyse(cmd.Context())
			if err != nil {
				return err
			}

			taskID := ""
			if len(args) == 1 {
				taskID = args[0]
				if _, ok := rpt.Snapshot.Task(taskID); !ok {
					return fmt.Errorf("task %s: %w", taskID, snapshot.ErrNotFound)
				}
			}

			if flagJSON {
				if taskID != "" {
					return outputJSON(rpt.Findings[taskID])
				}
				return outputJSON(rpt.Findings)
			}

			n := rpt.PrintWarnings(os.Stdout, taskID)
			if flagStrict && n > 0 {
				return fmt.Errorf("%d relation problems", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagStrict, "strict", false, "Exit non-zero when any finding is reported")
	return cmd
}

func edgesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edges",
		Short: "List the dependency connections drawn on the timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			rpt, err := analyse(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(rpt.Edges)
			}
			rpt.PrintEdges(os.Stdout)
			return nil
		},
	}
}

func vizCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "viz",
		Short: "Print a Graphviz DOT graph with the critical path in red",
		RunE: func(cmd *cobra.Command, args []string) error {
			rpt, err := analyse(cmd.Context())
			if err != nil {
				return err
			}
			rpt.PrintDOT(os.Stdout)
			return nil
		},
	}
}

func relateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relate",
		Short: "Add or remove task relations",
	}

	var flagBy string
	add := &cobra.Command{
		Use:   "add <source-id> <blocks|depends|duplicates|relates> <target-id>",
		Short: "Add a relation from source to target",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseRelationType(args[1])
			if err != nil {
				return err
			}
			store, err := requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			rel, err := store.AddRelation(cmd.Context(), args[0], args[2], kind, flagBy)
			if err != nil {
				return fmt.Errorf("add relation: %w", err)
			}
			if flagJSON {
				return outputJSON(rel)
			}
			fmt.Printf("%s %s %s %s  %s\n", ui.Green("✅"), ui.TaskID(rel.SourceTaskID), ui.Cyan(string(rel.Type)),
				ui.TaskID(rel.TargetTaskID), ui.Dim(rel.ID))
			return nil
		},
	}
	add.Flags().StringVar(&flagBy, "by", os.Getenv("USER"), "Recorded as the relation's creator")

	rm := &cobra.Command{
		Use:   "rm <relation-id>",
		Short: "Remove a relation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.RemoveRelation(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("remove relation: %w", err)
			}
			if !flagJSON {
				fmt.Printf("%s removed %s\n", ui.Green("✅"), ui.Dim(args[0]))
			}
			return nil
		},
	}

	cmd.AddCommand(add, rm)
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <todo|in_progress|done|cancelled>",
		Short: "Set a task's status and show the relation findings it now has",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := model.ParseStatus(args[1])
			if err != nil {
				return err
			}
			store, err := requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.UpdateTaskStatus(cmd.Context(), args[0], status); err != nil {
				return err
			}
			snap, err := store.Load(cmd.Context(), cfg.Workspace)
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			rpt := reporter.New(snap)

			if flagJSON {
				return outputJSON(rpt.Findings[args[0]])
			}
			fmt.Printf("%s %s is now %s\n", ui.StatusIcon(status), ui.TaskID(args[0]), ui.Status(status))
			rpt.PrintWarnings(os.Stdout, args[0])
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tasks and task_relations tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.WithField("driver", cfg.Database.Driver).Info("schema ready")
			return nil
		},
	}
}

func inferCmd() *cobra.Command {
	var (
		flagApply    bool
		flagModel    string
		flagFromFile string
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Use Claude to propose blocking relations from task titles",
		Long: `Sends the workspace's task titles to Claude and proposes blocks relations.
Proposals naming unknown tasks, pairs that are already related and edges that
would close a cycle are skipped. By default this is a dry run; --apply writes
the accepted relations to the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			src, closeSrc, err := openSource(ctx)
			if err != nil {
				return err
			}
			defer closeSrc()

			snap, err := src.Load(ctx, cfg.Workspace)
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			if len(snap.Tasks) == 0 {
				return fmt.Errorf("no tasks found")
			}

			var result *infer.Result
			if flagFromFile != "" {
				data, err := os.ReadFile(flagFromFile)
				if err != nil {
					return fmt.Errorf("read from-file: %w", err)
				}
				result, err = infer.ParseResult(string(data))
				if err != nil {
					return fmt.Errorf("parse from-file: %w", err)
				}
				if !flagJSON {
					fmt.Printf("📂 Loaded %s edges from %s\n", ui.Bold(len(result.Edges)), ui.Dim(flagFromFile))
				}
			} else {
				modelName := flagModel
				if modelName == "" {
					modelName = cfg.Claude.Model
				}
				client, err := infer.NewClient("", modelName)
				if err != nil {
					return err
				}
				summaries := infer.Summaries(snap.Tasks)
				if !flagJSON {
					fmt.Printf("🔍 Sending %s tasks to Claude for relation inference...\n", ui.Bold(len(summaries)))
				}
				result, err = client.Infer(ctx, summaries)
				if err != nil {
					return fmt.Errorf("infer relations: %w", err)
				}
			}

			accepted, skipped := infer.Validate(snap.Tasks, snap.Relations, result.Edges)
			for _, s := range skipped {
				log.WithFields(logrus.Fields{
					"source": s.Edge.SourceID,
					"target": s.Edge.TargetID,
				}).Info("skipped: " + s.Reason)
			}

			if flagJSON && !flagApply {
				if accepted == nil {
					accepted = []infer.Edge{}
				}
				return outputJSON(infer.Result{Edges: accepted, Summary: result.Summary})
			}

			if !flagJSON {
				fmt.Printf("\n🔗 Inferred %s relations (%d proposed, %d after validation):\n\n",
					ui.Bold(len(accepted)), len(result.Edges), len(accepted))
				for _, e := range accepted {
					fmt.Printf("  %s %s blocks %s  %s\n", ui.Cyan("→"), ui.TaskID(e.SourceID), ui.TaskID(e.TargetID), ui.Dim(e.Reason))
				}
				if result.Summary != "" {
					fmt.Printf("\n💡 %s %s\n", ui.BoldWhite("Summary:"), result.Summary)
				}
			}

			if !flagApply {
				fmt.Printf("\n🎯 %s\n", ui.Yellow("Dry run: use --apply to write these relations."))
				return nil
			}
			return applyEdges(ctx, accepted)
		},
	}

	cmd.Flags().BoolVar(&flagApply, "apply", false, "Write inferred relations to the database (default: dry-run)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Claude model to use (default: config, then Sonnet)")
	cmd.Flags().StringVar(&flagFromFile, "from-file", "", "Load proposals from a JSON file instead of calling Claude")

	return cmd
}

// applyEdges stores accepted proposals as blocks relations.
func applyEdges(ctx context.Context, edges []infer.Edge) error {
	store, err := requireStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var added []*model.Relation
	for _, e := range edges {
		rel, err := store.AddRelation(ctx, e.SourceID, e.TargetID, model.RelationBlocks, "alldone infer")
		if err != nil {
			if !snapshot.IsConflict(err) && !errors.Is(err, snapshot.ErrNotFound) {
				return fmt.Errorf("add relation %s -> %s: %w", e.SourceID, e.TargetID, err)
			}
			if !flagJSON {
				fmt.Printf("  %s %s blocks %s: %v\n", ui.Yellow("⏭️  SKIP:"), e.SourceID, e.TargetID, err)
			}
			continue
		}
		added = append(added, rel)
		if !flagJSON {
			fmt.Printf("  %s %s blocks %s\n", ui.Green("✅ OK:"), ui.TaskID(e.SourceID), ui.TaskID(e.TargetID))
		}
	}

	if flagJSON {
		if added == nil {
			added = []*model.Relation{}
		}
		return outputJSON(added)
	}
	fmt.Printf("\n🏁 Applied %s/%d relations.\n", ui.BoldGreen(len(added)), len(edges))
	return nil
}

func serveCmd() *cobra.Command {
	var flagPort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the timeline graph and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			port := cfg.Viewer.Port
			if flagPort != 0 {
				port = flagPort
			}
			if viewer.IsPortOpen(fmt.Sprintf("localhost:%d", port)) {
				return fmt.Errorf("port %d is already in use", port)
			}

			src, closeSrc, err := openSource(cmd.Context())
			if err != nil {
				return err
			}
			defer closeSrc()

			ui.PrintBanner(os.Stderr, fmt.Sprintf("timeline on http://localhost:%d/graph", port))
			return viewer.New(src, cfg.Workspace, log).Serve(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&flagPort, "port", 0, "Listen port (default from config, 7171)")
	return cmd
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
