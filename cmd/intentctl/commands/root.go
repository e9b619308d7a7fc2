package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

const defaultURL = "http://localhost:7070"

var (
	nodeURL string
	client  *apiClient
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "intentctl",
		Short:         "Operate an intentd node",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if nodeURL == "" {
				nodeURL = os.Getenv("INTENTD_URL")
			}
			if nodeURL == "" {
				nodeURL = defaultURL
			}
			client = newApiClient(nodeURL)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&nodeURL, "url", "", "node API base URL (default $INTENTD_URL or "+defaultURL+")")

	root.AddCommand(
		infoCmd(), swapCmd(), proofCmd(), payCmd(), trustlineCmd(), identityCmd(), keysCmd(),
	)
	return root
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the node identity, chains and message stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.get(cmd, "/v1/info")
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
