package mcp

import (
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/macropower/dotup/pkg/dotfiles"
)

// GetStatusParams defines parameters for the get_status tool.
type GetStatusParams struct{}

// EntryState describes the deployment state of one dotfile entry.
type EntryState struct {
	Source string `json:"source"`
	Target string `json:"target,omitempty"`
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// GetStatusResult contains the result of checking dotfile entry states.
type GetStatusResult struct {
	Message string       `json:"message"`
	Entries []EntryState `json:"entries"`
}

// createGetStatusResult creates the MCP tool result from GetStatusResult.
func createGetStatusResult(result GetStatusResult) *mcp.CallToolResultFor[GetStatusResult] {
	result.Message = formatStatusMessage(result.Entries)

	if result.Entries == nil {
		result.Entries = []EntryState{}
	}

	return &mcp.CallToolResultFor[GetStatusResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: result.Message},
		},
		StructuredContent: result,
	}
}

// populateResultFromStatuses converts deployer statuses into entry states.
func populateResultFromStatuses(result *GetStatusResult, statuses []*dotfiles.EntryStatus) {
	for _, st := range statuses {
		es := EntryState{
			Target: st.Target,
			State:  string(st.State),
			Detail: st.Detail,
		}
		if st.Entry != nil {
			es.Source = st.Entry.Source
		}

		result.Entries = append(result.Entries, es)
	}
}

// formatStatusMessage summarizes entry states as "N entries: 2 ok, 1 drifted.".
func formatStatusMessage(entries []EntryState) string {
	if len(entries) == 0 {
		return "No dotfile entries are configured."
	}

	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		counts[e.State]++
	}

	// Report states in severity order, worst last.
	order := []dotfiles.State{
		dotfiles.StateOK,
		dotfiles.StateSkipped,
		dotfiles.StateMissing,
		dotfiles.StateDrifted,
		dotfiles.StateConflict,
		dotfiles.StateError,
	}

	parts := make([]string, 0, len(counts))
	for _, state := range order {
		if n := counts[string(state)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, state))
		}
	}

	return fmt.Sprintf("Checked %d dotfile entries: %s.", len(entries), strings.Join(parts, ", "))
}
