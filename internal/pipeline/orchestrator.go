package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smefinder/smefinder/internal/agent"
	"github.com/smefinder/smefinder/internal/completion"
	"github.com/smefinder/smefinder/internal/slack"
	"github.com/smefinder/smefinder/internal/ticket"
	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
	"github.com/smefinder/smefinder/pkg/resilience"
	"github.com/smefinder/smefinder/pkg/types"
)

// ContextBuilder assembles a ticket context
type ContextBuilder interface {
	Build(ctx context.Context, ticketID string) (*ticket.Context, error)
}

// SlackService creates handoff conversations
type SlackService interface {
	CreateHandoff(ctx context.Context, ticketID string, result *types.Result) (*slack.Conversation, error)
}

// TicketUpdater applies the post-match mutation to the source ticket
type TicketUpdater interface {
	UpdateTicket(ctx context.Context, ticketID string, update ticket.UpdateRequest) error
}

// Collaborators is the explicit registry of everything a run touches.
// Every field is injected at startup; the orchestrator holds no hidden
// globals.
type Collaborators struct {
	Contexts       ContextBuilder
	Validator      *ticket.Validator
	Agent          agent.Invoker
	AgentExecutor  *resilience.Client
	Parser         *completion.Parser
	Slack          SlackService
	SlackExecutor  *resilience.Client
	Tickets        TicketUpdater
	TicketExecutor *resilience.Client
	TicketURL      func(ticketID string) string
}

// Request describes one matching run
type Request struct {
	TicketID    string
	Description string
	// Context carries a ticket context the caller already built, so the
	// run does not fetch the same ticket a second time.
	Context *ticket.Context
	// RequireEligibility applies the marker-tag and field rules. Webhook
	// runs set it; direct match requests do not.
	RequireEligibility bool
}

// Outcome is the terminal state of a run
type Outcome struct {
	SessionID string
	Stage     Stage
	Mode      types.WorkflowMode
	Result    *types.Result
	// Warnings lists non-fatal action failures
	Warnings []string
}

// Orchestrator drives a request through the matching pipeline. It never
// retries on its own; every side effect goes through a resilience client
// that owns the retry and breaker discipline.
type Orchestrator struct {
	collab  Collaborators
	logger  *logging.Logger
	onStage func(stage Stage, mode types.WorkflowMode)
	onRun   func(outcome *Outcome, elapsed time.Duration)
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithStageObserver registers a hook called on every stage transition
func WithStageObserver(fn func(stage Stage, mode types.WorkflowMode)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onStage = fn
	}
}

// WithRunObserver registers a hook called once per run with the terminal
// outcome and the elapsed wall time
func WithRunObserver(fn func(outcome *Outcome, elapsed time.Duration)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onRun = fn
	}
}

// NewOrchestrator wires an orchestrator from its collaborators
func NewOrchestrator(collab Collaborators, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		collab: collab,
		logger: logging.GetLogger().WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one matching run to a terminal stage. The returned Outcome
// carries the stage reached; on error the stage is always StageFailed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	outcome := &Outcome{
		SessionID: uuid.New().String(),
		Stage:     StageReceived,
		Mode:      agent.SelectMode(req.TicketID, req.Description),
	}
	ctx = logging.WithCorrelationID(ctx, outcome.SessionID)
	if req.TicketID != "" {
		ctx = logging.WithTicketID(ctx, req.TicketID)
	}

	start := time.Now()
	defer func() {
		if o.onRun != nil {
			o.onRun(outcome, time.Since(start))
		}
	}()

	if req.TicketID == "" && req.Description == "" {
		return o.fail(ctx, outcome, req.TicketID, errors.NewValidationError("Ticket ID or description is required"))
	}

	// Authentication happened at the edge; the transition is recorded so a
	// run's audit trail is complete.
	o.advance(ctx, outcome, StageVerified, req.TicketID)

	tc, err := o.buildContext(ctx, req, outcome)
	if err != nil {
		return o.fail(ctx, outcome, req.TicketID, err)
	}
	o.advance(ctx, outcome, StageContextBuilt, req.TicketID)

	if req.RequireEligibility && tc != nil && o.collab.Validator != nil {
		if err := o.collab.Validator.Validate(tc); err != nil {
			return o.fail(ctx, outcome, req.TicketID, err)
		}
	}

	description := req.Description
	if description == "" && tc != nil {
		description = tc.Description
	}

	instruction := agent.BuildInstruction(outcome.Mode, req.TicketID, description)
	raw, err := o.invokeAgent(ctx, outcome.SessionID, instruction)
	if err != nil {
		return o.fail(ctx, outcome, req.TicketID, err)
	}
	o.advance(ctx, outcome, StageAgentInvoked, req.TicketID)

	outcome.Result = o.collab.Parser.Parse(raw)
	outcome.Result.TicketID = req.TicketID
	if outcome.Result.WorkflowMode == "" {
		outcome.Result.WorkflowMode = string(outcome.Mode)
	}
	if req.TicketID != "" && o.collab.TicketURL != nil && outcome.Result.SourceTicketURL == "" {
		outcome.Result.SourceTicketURL = o.collab.TicketURL(req.TicketID)
	}
	o.advance(ctx, outcome, StageParsed, req.TicketID)

	o.dispatchActions(ctx, req, outcome)
	o.advance(ctx, outcome, StageActionsDispatched, req.TicketID)

	o.advance(ctx, outcome, StageCompleted, req.TicketID)
	return outcome, nil
}

// buildContext fetches the ticket when an ID is present. A lookup failure
// with a usable description degrades the run to description-only instead
// of failing it.
func (o *Orchestrator) buildContext(ctx context.Context, req Request, outcome *Outcome) (*ticket.Context, error) {
	if req.TicketID == "" {
		return nil, nil
	}
	if req.Context != nil {
		return req.Context, nil
	}

	tc, err := o.collab.Contexts.Build(ctx, req.TicketID)
	if err == nil {
		return tc, nil
	}

	if req.Description != "" {
		o.logger.WithContext(ctx).Warn("Ticket lookup failed, degrading to description-only",
			"ticket_id", req.TicketID, "error", err.Error())
		outcome.Mode = types.ModeDescriptionOnly
		outcome.Warnings = append(outcome.Warnings, "ticket lookup failed: "+err.Error())
		return nil, nil
	}
	return nil, err
}

func (o *Orchestrator) invokeAgent(ctx context.Context, sessionID, instruction string) (string, error) {
	raw, err := o.collab.AgentExecutor.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return o.collab.Agent.Invoke(ctx, sessionID, instruction)
	})
	if err != nil {
		return "", err
	}
	return raw.(string), nil
}

// dispatchActions creates the Slack handoff and annotates the source
// ticket. Both run only for ticket-backed runs with at least one
// recommendation; failures degrade the outcome, they never fail it.
func (o *Orchestrator) dispatchActions(ctx context.Context, req Request, outcome *Outcome) {
	if req.TicketID == "" || outcome.Mode == types.ModeDescriptionOnly || outcome.Result.IsEmpty() {
		return
	}

	if o.collab.Slack != nil {
		conv, err := executeSlack(ctx, o.collab.SlackExecutor, func(ctx context.Context) (*slack.Conversation, error) {
			return o.collab.Slack.CreateHandoff(ctx, req.TicketID, outcome.Result)
		})
		if err != nil {
			o.logger.WithContext(ctx).Warn("Handoff conversation failed",
				"ticket_id", req.TicketID, "error", err.Error())
			outcome.Warnings = append(outcome.Warnings, "slack handoff failed: "+err.Error())
		} else if conv != nil {
			outcome.Result.ConversationURL = conv.Permalink
		}
	}

	if o.collab.Tickets != nil {
		update := ticket.UpdateRequest{
			InternalNote: handoffNote(outcome.Result),
			AddTags:      []string{"sme_pending"},
		}
		err := o.collab.TicketExecutor.ExecuteVoid(ctx, func(ctx context.Context) error {
			return o.collab.Tickets.UpdateTicket(ctx, req.TicketID, update)
		})
		if err != nil {
			o.logger.WithContext(ctx).Warn("Ticket annotation failed",
				"ticket_id", req.TicketID, "error", err.Error())
			outcome.Warnings = append(outcome.Warnings, "ticket update failed: "+err.Error())
		}
	}
}

func executeSlack(ctx context.Context, exec *resilience.Client, op func(ctx context.Context) (*slack.Conversation, error)) (*slack.Conversation, error) {
	result, err := exec.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return op(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*slack.Conversation), nil
}

func (o *Orchestrator) advance(ctx context.Context, outcome *Outcome, stage Stage, ticketID string) {
	outcome.Stage = stage
	o.logger.LogPipelineEvent(ctx, stage.String(), ticketID, string(outcome.Mode), nil)
	if o.onStage != nil {
		o.onStage(stage, outcome.Mode)
	}
}

func (o *Orchestrator) fail(ctx context.Context, outcome *Outcome, ticketID string, err error) (*Outcome, error) {
	outcome.Stage = StageFailed
	o.logger.LogPipelineEvent(ctx, StageFailed.String(), ticketID, string(outcome.Mode), map[string]interface{}{
		"error": err.Error(),
	})
	if o.onStage != nil {
		o.onStage(StageFailed, outcome.Mode)
	}
	return outcome, err
}

func handoffNote(result *types.Result) string {
	note := "SME matching completed."
	for _, rec := range result.Recommendations {
		note += "\n- " + rec.Name + " (" + rec.Email + ")"
	}
	if result.ConversationURL != "" {
		note += "\nConversation: " + result.ConversationURL
	}
	return note
}
