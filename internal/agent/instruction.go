package agent

import (
	"fmt"

	"github.com/smefinder/smefinder/pkg/types"
)

// BuildInstruction renders the agent input text for a workflow mode. The
// wording is a functional contract with the agent's action groups: full
// mode directs the agent to fetch, match and dispatch; hybrid allows a
// fetch with a description fallback; description-only forbids side
// effects entirely.
func BuildInstruction(mode types.WorkflowMode, ticketID, description string) string {
	switch mode {
	case types.ModeFull:
		return fmt.Sprintf(
			"Find FDEs for Zendesk ticket %s. Fetch the ticket details, analyze requirements, "+
				"search for similar resolved tickets, recommend 3 FDEs with expertise reasoning, "+
				"create a Slack conversation, and update the Zendesk ticket.",
			ticketID)
	case types.ModeHybrid:
		return fmt.Sprintf(
			"Find FDEs for Zendesk ticket %s. Description: %s. Try to fetch ticket details "+
				"from Zendesk. If that fails, use the provided description to search for similar "+
				"tickets and recommend 3 FDEs with expertise reasoning based on the description.",
			ticketID, description)
	default:
		return fmt.Sprintf(
			"Find FDEs based on this ticket description: %s. Search for similar resolved "+
				"tickets in the knowledge base and recommend 3 FDEs whose expertise best matches "+
				"this issue. Provide reasoning for each recommendation. Do NOT attempt to fetch "+
				"from Zendesk or create Slack conversations.",
			description)
	}
}

// SelectMode picks the workflow mode from the available inputs
func SelectMode(ticketID, description string) types.WorkflowMode {
	switch {
	case ticketID != "" && description != "":
		return types.ModeHybrid
	case ticketID != "":
		return types.ModeFull
	default:
		return types.ModeDescriptionOnly
	}
}
