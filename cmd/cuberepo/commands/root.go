// Package commands holds the cuberepo CLI command tree
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cubeworks/cuberepo/internal/common"
	"github.com/cubeworks/cuberepo/internal/config"
	"github.com/cubeworks/cuberepo/internal/manager"
	"github.com/cubeworks/cuberepo/internal/persistence/sqlstore"
	"github.com/cubeworks/cuberepo/pkg/models"
)

var (
	dsn      string
	tenant   string
	app      string
	version  string
	branchID string
	userID   string
)

var rootCmd = &cobra.Command{
	Use:   "cuberepo",
	Short: "Administer a cube repository",
	Long:  `Inspect and administer a multi-tenant repository of versioned decision tables.`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("CUBEREPO_DSN"), "PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&tenant, "tenant", "NONE", "tenant name")
	rootCmd.PersistentFlags().StringVar(&app, "app", "", "application name")
	rootCmd.PersistentFlags().StringVar(&version, "app-version", "", "application version (major.minor.patch)")
	rootCmd.PersistentFlags().StringVar(&branchID, "branch", models.HeadBranch, "branch name")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "acting user (defaults to the OS user)")

	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(branchesCmd)
	rootCmd.AddCommand(cubesCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(releaseCmd)
}

// cliContext builds the request context with the acting user bound
func cliContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if userID != "" {
		ctx = common.WithUser(ctx, userID)
	}
	return ctx, cancel
}

// connect opens the persister and wraps it in a manager. Release waits are
// pointless from a one-shot CLI, so the quiet period is zeroed.
func connect(ctx context.Context) (*manager.Manager, func(), error) {
	if dsn == "" {
		return nil, nil, fmt.Errorf("no database configured; pass --dsn or set CUBEREPO_DSN")
	}
	store, err := sqlstore.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	settings := config.DefaultSettings()
	settings.ReleaseQuietPeriod = 0
	mgr, err := manager.New(store, manager.WithSettings(settings))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return mgr, func() { store.Close() }, nil
}

func requireAppID() (models.AppID, error) {
	if app == "" || version == "" {
		return models.AppID{}, fmt.Errorf("both --app and --app-version are required")
	}
	appID := models.NewAppID(tenant, app, version, models.StatusSnapshot, branchID)
	if err := appID.Validate(); err != nil {
		return models.AppID{}, err
	}
	return appID, nil
}
