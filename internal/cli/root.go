// Package cli provides the reelforge command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/reelforge-backend/internal/app"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	envFiles []string

	log         *logger.Logger
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "reelforge",
	Short: "Video short automation engine",
	Long: `Reelforge turns long videos into branded vertical shorts on a schedule.

Each automation fetches candidate videos from Bunny Stream, a GCS bucket or a
manual URL list, skips what it already processed this rotation cycle, cuts and
brands shorts with ffmpeg and optionally publishes them through Post for Me.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnv(envFiles); err != nil {
			return err
		}
		var err error
		log, err = app.NewLogger()
		if err != nil {
			return err
		}
		if cmd.Annotations["app"] == "none" {
			return nil
		}
		application, err = app.New(cmd.Context(), log)
		if err != nil {
			return fmt.Errorf("init app: %w", err)
		}
		return nil
	},
}

// Execute runs the root command with ctx. The app is closed even when the
// command fails, since cobra skips post-run hooks on error.
func Execute(ctx context.Context) error {
	defer func() {
		if application != nil {
			application.Close()
			application = nil
		} else if log != nil {
			log.Sync()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env when present)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cronCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(rotationCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadEnv loads dotenv files without overriding variables already set. A
// missing default .env is not an error.
func loadEnv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// resolveAutomation accepts an id or a name.
func resolveAutomation(ctx context.Context, ref string) (*types.Automation, error) {
	ref = strings.TrimSpace(ref)
	dbc := dbctx.New(ctx)
	var (
		a   *types.Automation
		err error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		a, err = application.Repos.Automations.GetByID(dbc, id)
	} else {
		a, err = application.Repos.Automations.GetByName(dbc, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("load automation: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("automation not found: %s", ref)
	}
	return a, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
