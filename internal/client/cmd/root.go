// Package cmd implements the brief-measure client CLI: key issuance,
// observation upload, retrieval, and account deletion against a running
// server.
package cmd

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version, buildDate string) *cobra.Command {
	var serverURL string
	root := &cobra.Command{
		Use:   "briefmeasure",
		Short: "brief-measure CLI",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3000", "Server base URL")

	root.AddCommand(newVersionCmd(version, buildDate))
	root.AddCommand(newKeyCmd(&serverURL))
	root.AddCommand(newSubmitCmd(&serverURL))
	root.AddCommand(newListCmd(&serverURL))
	root.AddCommand(newForgetCmd(&serverURL))
	return root
}
