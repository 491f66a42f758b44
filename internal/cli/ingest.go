package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a conversation transcript",
		Long: "Extract memory units from a transcript (one \"Speaker: text\" turn per line),\n" +
			"cluster them, and evolve the user profile. Reads stdin when no file is given.",
		Args: cobra.MaximumNArgs(1),
		Run:  runIngest,
	}

	cmd.Flags().String("conversation", "", "Conversation id to record on the units")
	cmd.Flags().String("at", "", "Conversation time (RFC3339 or YYYY-MM-DD, default now)")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	conversationID, _ := cmd.Flags().GetString("conversation")
	atFlag, _ := cmd.Flags().GetString("at")

	now := time.Now()
	if atFlag != "" {
		var err error
		if now, err = parseWhen(atFlag); err != nil {
			exitErr("parse --at", err)
		}
	}

	var transcript []byte
	var err error
	if len(args) == 1 {
		transcript, err = os.ReadFile(args[0])
	} else {
		transcript, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read transcript", err)
	}

	sys, err := openSystem()
	if err != nil {
		exitErr("open", err)
	}
	defer sys.Close()

	res, err := sys.IngestTranscript(cmd.Context(), userFlag, conversationID, string(transcript), now)
	if err != nil {
		exitErr("ingest", err)
	}

	if formatFlag == "json" {
		printJSON(res)
		return
	}
	fmt.Printf("stored %d units (%d new clusters, %d updated, %d conflicts)\n",
		res.UnitsStored, res.ClustersCreated, res.ClustersUpdated, res.Conflicts)
}

func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
