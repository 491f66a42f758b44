package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the user's memory",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk,
	}

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	sys, err := openSystem()
	if err != nil {
		exitErr("open", err)
	}
	defer sys.Close()

	answer, rec, err := sys.Answer(cmd.Context(), userFlag, question, time.Now())
	if err != nil {
		exitErr("ask", err)
	}

	if formatFlag == "json" {
		printJSON(map[string]any{
			"answer":   answer,
			"rewrites": rec.Rewrites,
			"cycles":   rec.Cycles,
			"results":  len(rec.Results),
		})
		return
	}
	fmt.Println(answer)
	if verbose && len(rec.Rewrites) > 0 {
		fmt.Printf("\n(%d retrieval cycles, rewrites: %s)\n", rec.Cycles, strings.Join(rec.Rewrites, "; "))
	}
}
