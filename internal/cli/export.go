package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/sofie/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export every memory in insertion order. Filter by kind with --kind.",
		Run:   runExport,
	}

	cmd.Flags().String("kind", "", "Filter by kind")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")

	s := mustRestore(cmd)
	defer s.Close()

	memories := s.orch.Store().Snapshot()
	if kind != "" {
		filtered := memories[:0]
		for _, m := range memories {
			if m.Kind == model.Kind(kind) {
				filtered = append(filtered, m)
			}
		}
		memories = filtered
	}

	printJSON(memories)
}
