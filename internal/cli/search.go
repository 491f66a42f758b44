package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/evermemo/evermemo/internal/model"
	"github.com/evermemo/evermemo/internal/recall"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve memory without composing an answer",
		Long:  "Hybrid dense and keyword search over memory units, rank-fused and temporally filtered.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().Bool("simple", false, "Single search pass, skip the refinement loop")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	simple, _ := cmd.Flags().GetBool("simple")
	query := strings.Join(args, " ")

	sys, err := openSystem()
	if err != nil {
		exitErr("open", err)
	}
	defer sys.Close()

	var results []model.RetrievalResult
	if simple {
		results, err = sys.Search(cmd.Context(), userFlag, query, time.Now())
	} else {
		var rec *recall.Recollection
		rec, err = sys.Query(cmd.Context(), userFlag, query, time.Now())
		if rec != nil {
			results = rec.Results
		}
	}
	if err != nil {
		exitErr("search", err)
	}

	if formatFlag == "json" {
		printJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%.4f] %s\n", i+1, r.RRFScore, r.Unit.Narrative)
		for _, f := range r.ValidForesights {
			fmt.Printf("   upcoming: %s\n", f.Content)
		}
	}
}
