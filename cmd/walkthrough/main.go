// Command walkthrough runs the data-center walkthrough portal API and offers
// operator commands for migrations, scripted submissions and reports.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/config"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	envFile string
	server  string
	token   string
	userID  string
	email   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "walkthrough",
		Short: "Data-center walkthrough and audit portal",
		Long: `walkthrough serves the audit portal API and lets operators apply schema
migrations, submit recorded walkthroughs and read audit reports, either
against the configured datastore or against a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.envFile, "env", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&opts.server, "server", "", "base URL of a running API; when set, commands call it instead of the datastore")
	pf.StringVar(&opts.token, "token", os.Getenv("WALKTHROUGH_TOKEN"), "bearer token for --server")
	pf.StringVar(&opts.userID, "user-id", "", "technician id")
	pf.StringVar(&opts.email, "email", "", "technician email")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSubmitCmd(opts),
		newReportsCmd(opts),
	)
	return root
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}
	return config.Load()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
