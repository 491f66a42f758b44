package extract

import (
	"strings"

	"github.com/evermemo/evermemo/internal/model"
)

// ParseTranscript parses "Speaker: text" lines into dialogue turns. Lines
// without a speaker prefix continue the previous turn; blank lines are
// skipped.
func ParseTranscript(transcript string) []model.DialogueTurn {
	var turns []model.DialogueTurn

	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		speaker, content, ok := splitSpeaker(line)
		if !ok {
			if len(turns) > 0 {
				turns[len(turns)-1].Content += " " + line
			}
			continue
		}

		turns = append(turns, model.DialogueTurn{
			TurnID:  len(turns),
			Speaker: speaker,
			Content: content,
		})
	}
	return turns
}

// splitSpeaker splits a "Speaker: text" line. The speaker label must be
// short and colon-terminated; URLs and clock times do not qualify.
func splitSpeaker(line string) (speaker, content string, ok bool) {
	i := strings.Index(line, ":")
	if i <= 0 || i > 32 {
		return "", "", false
	}
	speaker = strings.TrimSpace(line[:i])
	if speaker == "" || len(strings.Fields(speaker)) > 2 {
		return "", "", false
	}
	return speaker, strings.TrimSpace(line[i+1:]), true
}
