package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "liveness",
		Short: "Show validated count and days until the switch",
		Run:   runLiveness,
	}

	RootCmd.AddCommand(cmd)
}

func runLiveness(cmd *cobra.Command, args []string) {
	s := mustRestore(cmd)
	defer s.Close()

	printJSON(s.orch.Status(cmd.Context()).Force)
}
