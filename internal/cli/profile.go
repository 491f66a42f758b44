package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evermemo/evermemo/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the user's profile",
		Long:  "Current attribute values, inferred traits, and the conflict audit trail.",
		Run:   runProfile,
	}

	cmd.Flags().Bool("summary", false, "Readable summary regardless of --format")

	RootCmd.AddCommand(cmd)
}

func runProfile(cmd *cobra.Command, args []string) {
	summary, _ := cmd.Flags().GetBool("summary")
	sys, err := openSystem()
	if err != nil {
		exitErr("open", err)
	}
	defer sys.Close()

	p, err := sys.Profile(cmd.Context(), userFlag)
	if err != nil {
		exitErr("profile", err)
	}

	if formatFlag == "json" && !summary {
		printJSON(p)
		return
	}
	fmt.Print(memory.ProfileSummary(p))
}
