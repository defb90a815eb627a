package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session",
		Long: "Read messages from stdin, one per line, until EOF or /quit.\n" +
			"Commands: /chamber N, /status, /introduce, /quit.",
		Run: runChat,
	}

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		exitErr("open session", err)
	}
	defer s.Close()

	if err := s.orch.Awaken(ctx); err != nil {
		exitErr("awaken", err)
	}
	fmt.Fprintln(os.Stderr, s.orch.Introduce())

	scanner := bufio.NewScanner(os.Stdin)
	for ctx.Err() == nil && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := chatCommand(cmd, s, line); quit {
				break
			}
			continue
		}
		resp, err := s.orch.Speak(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: speak: %v\n", err)
			continue
		}
		printResponse(resp)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: read stdin: %v\n", err)
	}

	// the command context may already be cancelled by a signal
	if err := s.orch.Suspend(context.WithoutCancel(ctx)); err != nil {
		exitErr("suspend", err)
	}
}

func chatCommand(cmd *cobra.Command, s *session, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/chamber":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: /chamber N")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err == nil {
			err = s.orch.SetChamber(n)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(os.Stderr, "chamber %d\n", n)
	case "/status":
		printJSON(s.orch.Status(cmd.Context()))
	case "/introduce":
		fmt.Println(s.orch.Introduce())
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", fields[0])
	}
	return false
}
