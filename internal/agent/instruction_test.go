package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smefinder/smefinder/pkg/types"
)

func TestBuildInstruction_FullMode(t *testing.T) {
	text := BuildInstruction(types.ModeFull, "42", "")
	assert.Contains(t, text, "Zendesk ticket 42")
	assert.Contains(t, text, "create a Slack conversation")
	assert.Contains(t, text, "update the Zendesk ticket")
}

func TestBuildInstruction_HybridMode(t *testing.T) {
	text := BuildInstruction(types.ModeHybrid, "42", "dashboard is slow")
	assert.Contains(t, text, "Zendesk ticket 42")
	assert.Contains(t, text, "Description: dashboard is slow")
	assert.Contains(t, text, "If that fails")
}

func TestBuildInstruction_DescriptionOnlyMode(t *testing.T) {
	text := BuildInstruction(types.ModeDescriptionOnly, "", "dashboard is slow")
	assert.Contains(t, text, "dashboard is slow")
	assert.Contains(t, text, "Do NOT attempt to fetch from Zendesk")
	assert.NotContains(t, text, "ticket 42")
}

func TestSelectMode(t *testing.T) {
	assert.Equal(t, types.ModeFull, SelectMode("42", ""))
	assert.Equal(t, types.ModeHybrid, SelectMode("42", "desc"))
	assert.Equal(t, types.ModeDescriptionOnly, SelectMode("", "desc"))
}
