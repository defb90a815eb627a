package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every operator",
		Run:   runStatus,
	}

	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	s := mustRestore(cmd)
	defer s.Close()

	st := s.orch.Status(cmd.Context())
	if formatFlag == "text" {
		fmt.Println(st.Source)
		fmt.Printf("origin:   %s\n", st.Origin.Status)
		fmt.Printf("force:    %s, %d validated, %.1f days until the switch\n", st.Force.Consensus, st.Force.ValidatedCount, st.Force.DaysUntilSwitch)
		fmt.Printf("eternal:  %d memories (caps %d/%d)\n", st.Memory.Total, st.Memory.SoftCap, st.Memory.HardCap)
		return
	}
	printJSON(st)
}
