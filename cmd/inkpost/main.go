package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "inkpost",
		Short: "Inkpost blog server and client",
		Long: `Inkpost serves a small blog: the administrator writes posts and
registered readers comment on them.

Run without a command to start the server. The client commands talk to a
running server over its JSON API and keep the session in ~/.inkpost/config.json.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSessionsCmd(),
		newRegisterCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newReadCmd(),
		newPostCmd(),
		newEditCmd(),
		newDeleteCmd(),
		newCommentCmd(),
		newStatusCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
