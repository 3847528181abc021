package tools

import (
	"encoding/json"
	"fmt"

	"github.com/localrivet/mem0mcp/internal/errortypes"
	"github.com/localrivet/mem0mcp/internal/mem0"
)

// maxEchoRunes bounds how much of the saved text is echoed back.
const maxEchoRunes = 100

// Result is the outcome of one tool invocation: text for the caller, and
// whether it reports a failure.
type Result struct {
	Text    string
	IsError bool
}

// Success returns a successful Result.
func Success(text string) Result {
	return Result{Text: text}
}

// Failure returns a failed Result whose text starts with prefix, e.g.
// "Error saving memory".
func Failure(prefix string, err error) Result {
	return Result{Text: fmt.Sprintf("%s: %v", prefix, err), IsError: true}
}

// FormatSaved is the confirmation for a successful save. Long text is cut
// to 100 characters and marked with "...".
func FormatSaved(text string) string {
	runes := []rune(text)
	if len(runes) > maxEchoRunes {
		text = string(runes[:maxEchoRunes]) + "..."
	}
	return "Successfully saved memory: " + text
}

type listEntry struct {
	ID        string                 `json:"id,omitempty"`
	Memory    string                 `json:"memory"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt string                 `json:"created_at,omitempty"`
}

type searchEntry struct {
	ID       string                 `json:"id,omitempty"`
	Memory   string                 `json:"memory"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    *float64               `json:"score,omitempty"`
}

// FormatList renders get_all_memories output: an indented JSON array in
// backend order, or a notice when there is nothing to show.
func FormatList(records []mem0.Record, args ListArgs) (string, error) {
	if len(records) == 0 {
		return fmt.Sprintf("No memories found for user %q in category %q.", args.UserID, args.Category), nil
	}
	entries := make([]listEntry, len(records))
	for i, r := range records {
		entries[i] = listEntry{ID: r.ID, Memory: r.Memory, Metadata: r.Metadata, CreatedAt: r.CreatedAt}
	}
	return encode(entries)
}

// FormatSearch renders search_memories output the same way, with scores.
func FormatSearch(records []mem0.Record, args SearchArgs) (string, error) {
	if len(records) == 0 {
		return fmt.Sprintf("No memories matched %q for user %q in category %q.", args.Query, args.UserID, args.Category), nil
	}
	entries := make([]searchEntry, len(records))
	for i, r := range records {
		entries[i] = searchEntry{ID: r.ID, Memory: r.Memory, Metadata: r.Metadata, Score: r.Score}
	}
	return encode(entries)
}

func encode(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errortypes.InternalError(err, "failed to encode result")
	}
	return string(data), nil
}
