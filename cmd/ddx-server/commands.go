package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ddx/ddx/internal/config"
	"github.com/ddx/ddx/internal/domain/diagnosis"
	"github.com/ddx/ddx/internal/platform/db"
	"github.com/ddx/ddx/internal/platform/extractor"
	"github.com/ddx/ddx/internal/platform/prolog"
	"github.com/ddx/ddx/internal/platform/tabular"
	"github.com/ddx/ddx/migrations"
)

// cliService loads the knowledge base for a one-shot command. Logs go to
// stderr so that command output stays clean.
func cliService(ctx context.Context) (*diagnosis.Service, tabular.Source, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	return openService(ctx, cfg, logger)
}

func diagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Rank the diseases explaining a set of symptoms",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			list, _ := cmd.Flags().GetString("mentions")
			asJSON, _ := cmd.Flags().GetBool("json")
			if (text == "") == (list == "") {
				return errors.New("exactly one of --text or --mentions is required")
			}

			ctx := cmd.Context()
			svc, src, err := cliService(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			var out *diagnosis.Outcome
			if text != "" {
				out, err = svc.DiagnoseText(ctx, text)
			} else {
				out, err = svc.DiagnoseMentions(ctx, extractor.SplitList(list))
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out.Report())
			}
			return out.WriteText(w)
		},
	}
	cmd.Flags().String("text", "", "Clinical free text to extract symptoms from")
	cmd.Flags().String("mentions", "", "Comma-separated symptom mentions")
	cmd.Flags().Bool("json", false, "Print the JSON report instead of the table")
	return cmd
}

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive diagnosis loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, src, err := cliService(ctx)
			if err != nil {
				return err
			}
			defer src.Close()
			return runREPL(ctx, svc, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runREPL reads one input per line until "exit" or end of input.
func runREPL(ctx context.Context, svc *diagnosis.Service, in io.Reader, w io.Writer) error {
	fmt.Fprintln(w, "Welcome to the abductive differential diagnosis system.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Type a symptom list or clinical text. Type 'exit' to quit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, "\nEnter patient symptoms or description: ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), "exit") {
			fmt.Fprintln(w, "Goodbye!")
			return nil
		}

		out, err := svc.DiagnoseText(ctx, line)
		if err != nil {
			fmt.Fprintf(w, "Error in diagnosis: %v\n", err)
			continue
		}
		if len(out.Mentions) == 0 {
			fmt.Fprintln(w, "No symptoms recognized in your input.")
			continue
		}
		if err := out.WriteText(w); err != nil {
			return err
		}
	}
}

func kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Inspect the knowledge base",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show fact, disease and symptom counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, src, err := cliService(cmd.Context())
			if err != nil {
				return err
			}
			defer src.Close()

			st, err := svc.Stats()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Source:   %s\n", st.Source)
			fmt.Fprintf(w, "Facts:    %d\n", st.Facts)
			fmt.Fprintf(w, "Diseases: %d\n", st.Diseases)
			fmt.Fprintf(w, "Symptoms: %d\n", st.Symptoms)
			fmt.Fprintf(w, "Skipped:  %d\n", st.Skipped)
			for _, le := range st.TopSkipped {
				fmt.Fprintf(w, "  %s\n", le.Error())
			}
			return nil
		},
	}
	cmd.AddCommand(statsCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the fact base as prolog, csv or yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			svc, src, err := cliService(cmd.Context())
			if err != nil {
				return err
			}
			defer src.Close()

			kb, err := svc.KnowledgeBase()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			switch format {
			case "prolog":
				return prolog.WriteFacts(w, kb)
			case "csv":
				return tabular.WriteCSV(w, kb)
			case "yaml":
				return tabular.WriteYAML(w, kb)
			default:
				return fmt.Errorf("unknown export format %q (want prolog, csv or yaml)", format)
			}
		},
	}
	exportCmd.Flags().String("format", "prolog", "Output format: prolog, csv or yaml")
	cmd.AddCommand(exportCmd)

	return cmd
}

// migrationSource returns the embedded migrations, or dir when given.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the relation table",
	}

	openMigrator := func(cmd *cobra.Command) (*db.Migrator, func(), error) {
		dir, _ := cmd.Flags().GetString("dir")
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required")
		}
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		pool, err := db.NewPool(cmd.Context(), db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}, logger)
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, migrationSource(dir)), pool.Close, nil
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default: built-in migrations)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default: built-in migrations)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
