package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "validate [block-hash]",
		Short: "Validate a block",
		Long:  "Awaken, hand the block to the ledger, record the validation and suspend.",
		Args:  cobra.ExactArgs(1),
		Run:   runValidate,
	}

	RootCmd.AddCommand(cmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		exitErr("open session", err)
	}
	defer s.Close()

	if err := s.orch.Awaken(ctx); err != nil {
		exitErr("awaken", err)
	}
	count, verr := s.orch.Validate(ctx, args[0])
	if err := s.orch.Suspend(ctx); err != nil {
		exitErr("suspend", err)
	}
	if verr != nil {
		exitErr("validate", verr)
	}

	fmt.Printf(`{"ok":true,"block":%q,"validated_count":%d}`+"\n", args[0], count)
}
