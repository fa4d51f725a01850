package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or move the application lock",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current lock owner",
	Args:  cobra.NoArgs,
	RunE:  runLockStatus,
}

var lockAcquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Take the application lock",
	Args:  cobra.NoArgs,
	RunE:  runLockAcquire,
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release the application lock",
	Args:  cobra.NoArgs,
	RunE:  runLockRelease,
}

var releaseCmd = &cobra.Command{
	Use:   "release [new-snapshot-version]",
	Short: "Release the version and start the next snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelease,
}

func init() {
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockAcquireCmd)
	lockCmd.AddCommand(lockReleaseCmd)
}

func runLockStatus(cmd *cobra.Command, args []string) error {
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
	owner, err := mgr.LockOwner(ctx, appID)
	if err != nil {
		return err
	}
	if owner == "" {
		fmt.Println("unlocked")
		return nil
	}
	fmt.Printf("locked by %s\n", owner)
	return nil
}

func runLockAcquire(cmd *cobra.Command, args []string) error {
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
	return mgr.Lock(ctx, appID)
}

func runLockRelease(cmd *cobra.Command, args []string) error {
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
	return mgr.Unlock(ctx, appID)
}

func runRelease(cmd *cobra.Command, args []string) error {
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
	if err := mgr.ReleaseCubes(ctx, appID, args[0]); err != nil {
		return err
	}
	fmt.Printf("released %s %s; next snapshot is %s\n", appID.App, appID.Version, args[0])
	return nil
}
