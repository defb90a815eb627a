package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/sofie/internal/model"
	"github.com/rcliao/sofie/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Search memories by substring",
		Long:  "Find memories whose content contains the query, most significant first.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}

	cmd.Flags().String("kind", "", "Filter by kind")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default: config recall_limit)")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s := mustRestore(cmd)
	defer s.Close()

	results, err := s.orch.Store().Recall(cmd.Context(), store.RecallParams{
		Query: query,
		Kind:  model.Kind(kind),
		Limit: limit,
	})
	if err != nil {
		exitErr("recall", err)
	}

	printJSON(results)
}
