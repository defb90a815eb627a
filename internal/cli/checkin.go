package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Reset the dead-man's switch",
		Long:  "Record a liveness checkin and save it. Prints the tracker state.",
		Run:   runCheckin,
	}

	RootCmd.AddCommand(cmd)
}

func runCheckin(cmd *cobra.Command, args []string) {
	s := mustRestore(cmd)
	defer s.Close()

	if err := s.orch.Checkin(cmd.Context()); err != nil {
		exitErr("checkin", err)
	}

	printJSON(s.orch.Status(cmd.Context()).Force)
}
