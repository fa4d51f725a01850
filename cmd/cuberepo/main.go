// cuberepo is the admin CLI over the cube repository manager. It speaks to
// the PostgreSQL persister directly, so it is meant for operators, not for
// embedding.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/cubeworks/cuberepo/cmd/cuberepo/commands"
)

func main() {
	// optional; environments without a .env just use the process env
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
