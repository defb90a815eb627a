package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/sofie/internal/model"
	"github.com/rcliao/sofie/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a memory",
		Long:  "Store a memory directly. Content can be a positional arg or piped via stdin.",
		Run:   runRemember,
	}

	cmd.Flags().String("kind", string(model.KindConversation), "Kind: conversation, ritual, insight, pattern")
	cmd.Flags().Float64P("significance", "s", 0.5, "Significance 0.0-1.0")
	cmd.Flags().IntP("chamber", "n", 0, "Chamber 1-9 (0 for none)")
	cmd.Flags().String("tone", "", "Emotional tone")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	significance, _ := cmd.Flags().GetFloat64("significance")
	chamber, _ := cmd.Flags().GetInt("chamber")
	tone, _ := cmd.Flags().GetString("tone")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("remember", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	s := mustRestore(cmd)
	defer s.Close()

	mem, err := s.orch.Store().Remember(cmd.Context(), store.RememberParams{
		Kind:         model.Kind(kind),
		Content:      strings.TrimSpace(content),
		Significance: significance,
		Chamber:      chamber,
		Tone:         tone,
	})
	if err != nil {
		exitErr("remember", err)
	}
	if err := s.orch.Store().Persist(cmd.Context()); err != nil {
		exitErr("persist", err)
	}

	printJSON(mem)
}
