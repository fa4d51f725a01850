package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cubeworks/cuberepo/pkg/models"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List the applications of a tenant",
	Args:  cobra.NoArgs,
	RunE:  runApps,
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List an application's versions by status",
	Args:  cobra.NoArgs,
	RunE:  runVersions,
}

var branchesCmd = &cobra.Command{
	Use:   "branches",
	Short: "List the branches of a version",
	Args:  cobra.NoArgs,
	RunE:  runBranches,
}

var cubesCmd = &cobra.Command{
	Use:   "cubes [name-pattern]",
	Short: "List cubes, optionally filtered by a */? name pattern",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCubes,
}

func runApps(cmd *cobra.Command, args []string) error {
	ctx, cancel := cliContext()
	defer cancel()
	mgr, done, err := connect(ctx)
	if err != nil {
		return err
	}
	defer done()
	names, err := mgr.GetAppNames(ctx, tenant)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runVersions(cmd *cobra.Command, args []string) error {
	ctx, cancel := cliContext()
	defer cancel()
	mgr, done, err := connect(ctx)
	if err != nil {
		return err
	}
	defer done()
	if app == "" {
		return fmt.Errorf("--app is required")
	}
	versions, err := mgr.GetVersions(ctx, tenant, app)
	if err != nil {
		return err
	}
	for _, status := range []models.ReleaseStatus{models.StatusSnapshot, models.StatusRelease} {
		for _, v := range versions[status] {
			fmt.Printf("%s\t%s\n", v, status)
		}
	}
	return nil
}

func runBranches(cmd *cobra.Command, args []string) error {
	ctx, cancel := cliContext()
	defer cancel()
	mgr, done, err := connect(ctx)
	if err != nil {
		return err
	}
	defer done()
	appID, err := requireAppID()
	if err != nil {
		return err
	}
	branches, err := mgr.GetBranches(ctx, appID)
	if err != nil {
		return err
	}
	for _, b := range branches {
		fmt.Println(b)
	}
	return nil
}

func runCubes(cmd *cobra.Command, args []string) error {
	ctx, cancel := cliContext()
	defer cancel()
	mgr, done, err := connect(ctx)
	if err != nil {
		return err
	}
	defer done()
	appID, err := requireAppID()
	if err != nil {
		return err
	}
	pattern := ""
	if len(args) == 1 {
		pattern = args[0]
	}
	records, err := mgr.Search(ctx, appID, pattern, "", models.SearchOptions{ActiveRecordsOnly: true})
	if err != nil {
		return err
	}
	for _, rec := range records {
		changed := " "
		if rec.Changed {
			changed = "*"
		}
		fmt.Printf("%s %s\trev %d\t%s\n", changed, rec.Name, rec.Revision, rec.SHA1)
	}
	return nil
}
