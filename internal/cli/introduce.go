package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/sofie/internal/identity"
	"github.com/rcliao/sofie/internal/pattern"
	"github.com/rcliao/sofie/internal/sofie"
)

func init() {
	introduce := &cobra.Command{
		Use:   "introduce",
		Short: "Print the self-description",
		Run:   runIntroduce,
	}
	pillars := &cobra.Command{
		Use:   "pillars",
		Short: "List the seven pillars and their operators",
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(sofie.SevenPillars())
		},
	}
	chart := &cobra.Command{
		Use:   "chart",
		Short: "Show the numerology of the identity profile",
		Run:   runChart,
	}

	RootCmd.AddCommand(introduce, pillars, chart)
}

func runIntroduce(cmd *cobra.Command, args []string) {
	s := mustRestore(cmd)
	defer s.Close()

	fmt.Println(s.orch.Introduce())
}

func runChart(cmd *cobra.Command, args []string) {
	p := identity.DefaultProfile()
	printJSON(struct {
		Name       string             `json:"name"`
		Anagram    bool               `json:"anagram_verified"`
		Numerology pattern.Numerology `json:"numerology"`
	}{
		Name:       p.Name,
		Anagram:    identity.NewGuard(p).VerifyAnagram(),
		Numerology: pattern.Pythagorean(p.Name, p.BirthDate),
	})
}
