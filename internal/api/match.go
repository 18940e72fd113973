package api

import (
	"github.com/gin-gonic/gin"

	"github.com/smefinder/smefinder/internal/pipeline"
	"github.com/smefinder/smefinder/internal/ticket"
	"github.com/smefinder/smefinder/pkg/logging"
)

// MatchRequest is the direct matching API request. At least one of
// ticket_id and description must be set.
type MatchRequest struct {
	TicketID    string `json:"ticket_id"`
	Description string `json:"description"`
}

// MatchHandler serves on-demand matching requests
type MatchHandler struct {
	runner Runner
	logger *logging.Logger
}

// NewMatchHandler creates the match handler
func NewMatchHandler(runner Runner) *MatchHandler {
	return &MatchHandler{
		runner: runner,
		logger: logging.GetLogger().WithComponent("match_handler"),
	}
}

// Handle processes POST /api/v1/match
func (h *MatchHandler) Handle(c *gin.Context) {
	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "Malformed request body")
		return
	}
	if req.TicketID == "" && req.Description == "" {
		BadRequestResponse(c, "At least one of ticket_id and description is required")
		return
	}
	if req.Description != "" {
		if err := ticket.ValidateDescription(req.Description); err != nil {
			ErrorResponseFromError(c, err)
			return
		}
	}

	outcome, err := h.runner.Run(c.Request.Context(), pipeline.Request{
		TicketID:    req.TicketID,
		Description: req.Description,
	})
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, gin.H{
		"session_id":    outcome.SessionID,
		"workflow_mode": outcome.Mode,
		"result":        outcome.Result,
		"warnings":      outcome.Warnings,
	})
}
