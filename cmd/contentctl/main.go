// Command contentctl builds, validates and imports course content, seeds achievements
// and drafts lesson steps.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aimd54/calculus-api/internal/config"
	"github.com/aimd54/calculus-api/internal/content"
	"github.com/aimd54/calculus-api/internal/generator"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/pkg/logger"
)

type app struct {
	configPath string
	cfg        *config.Config
	log        *logger.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "contentctl",
		Short:        "Manage calculus course content",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("CONFIG_PATH"), "path to config file")

	root.AddCommand(a.syncCommand(), a.seedCommand(), a.generateCommand(), buildCommand(), validateCommand())
	return root
}

func (a *app) openDB() (*repository.DB, error) {
	db, err := repository.NewDB(&a.cfg.Database, a.log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(a.cfg.Database.Driver, a.log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (a *app) syncCommand() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import categories.json and courses/*.json, skipping stories that already exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := content.NewImporter(repository.NewContentRepository(db), a.log).Import(dataDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "categories added: %d, stories added: %d, stories skipped: %d\n",
				report.CategoriesAdded, report.StoriesAdded, report.StoriesSkipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data", "data", "content directory")
	return cmd
}

func (a *app) seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-achievements",
		Short: "Insert missing achievements from the built-in catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			inserted, err := content.SeedAchievements(repository.NewAchievementRepository(db), a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "achievements inserted: %d\n", inserted)
			return nil
		},
	}
}

func (a *app) generateCommand() *cobra.Command {
	var systemFile, promptFile, outFile string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draft a lesson step with the configured chat model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			systemPrompt, err := readPrompt(systemFile)
			if err != nil {
				return err
			}
			userPrompt, err := readPrompt(promptFile)
			if err != nil {
				return err
			}

			client, err := generator.NewClient(&a.cfg.Generator, a.log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			doc, err := client.GenerateStep(ctx, systemPrompt, userPrompt)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode step: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(outFile), 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := os.WriteFile(outFile, append(data, '\n'), 0o644); err != nil { //nolint:gosec // lesson files are world-readable
				return fmt.Errorf("failed to write %s: %w", outFile, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d slides)\n", outFile, len(doc.Slides))
			return nil
		},
	}
	cmd.Flags().StringVar(&systemFile, "system", "prompts/system.md", "system prompt file")
	cmd.Flags().StringVar(&promptFile, "prompt", "prompts/user.md", "user prompt file")
	cmd.Flags().StringVar(&outFile, "out", "output/step.json", "output file")
	return cmd
}

// noConfig replaces the root hook for commands that only touch files.
func noConfig(*cobra.Command, []string) error { return nil }

func buildCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:               "build SRC",
		Short:             "Assemble a course folder or course file into TARGET/<slug>.json",
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: noConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := content.BuildCourse(args[0], target)
			if err != nil {
				return err
			}
			if result.Unchanged {
				fmt.Fprintf(cmd.OutOrStdout(), "unchanged %s\n", result.Path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d chapters, %d steps)\n", result.Path, result.Chapters, result.Steps)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "data/courses", "directory to write the course file to")
	return cmd
}

func validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "validate DIR",
		Short:             "Check every content JSON file under DIR and report per-file errors",
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: noConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := content.ValidateDir(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range report.Failures {
				fmt.Fprintf(out, "FAILED %s: %v\n", f.Path, f.Err)
			}
			fmt.Fprintf(out, "files checked: %d, errors: %d\n", report.Checked, len(report.Failures))
			if !report.OK() {
				return fmt.Errorf("%d invalid content files", len(report.Failures))
			}
			return nil
		},
	}
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
