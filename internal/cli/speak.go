package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/sofie/internal/sofie"
)

func init() {
	cmd := &cobra.Command{
		Use:   "speak [message]",
		Short: "Run one message through the pipeline",
		Long:  "Awaken, speak once and suspend. The message can be a positional arg or piped via stdin.",
		Run:   runSpeak,
	}

	cmd.Flags().IntP("chamber", "n", 0, "Chamber 1-9 (default: config default_chamber)")

	RootCmd.AddCommand(cmd)
}

func runSpeak(cmd *cobra.Command, args []string) {
	chamber, _ := cmd.Flags().GetInt("chamber")

	var input string
	if len(args) > 0 {
		input = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			input = string(b)
		}
	}
	input = strings.TrimSpace(input)
	if input == "" {
		exitErr("speak", fmt.Errorf("message is required (positional arg or stdin)"))
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer s.Close()

	if chamber != 0 {
		if err := s.orch.SetChamber(chamber); err != nil {
			exitErr("speak", err)
		}
	}

	resp, err := s.orch.Speak(cmd.Context(), input)
	if err != nil {
		exitErr("speak", err)
	}
	if err := s.orch.Suspend(cmd.Context()); err != nil {
		exitErr("suspend", err)
	}

	printResponse(resp)
}

func printResponse(resp *sofie.Response) {
	if formatFlag == "text" {
		fmt.Println(resp.Message)
		return
	}
	printJSON(resp)
}
