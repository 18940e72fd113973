package api

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/smefinder/smefinder/internal/pipeline"
	"github.com/smefinder/smefinder/internal/queue"
	"github.com/smefinder/smefinder/internal/ticket"
	"github.com/smefinder/smefinder/internal/webhook"
	"github.com/smefinder/smefinder/pkg/logging"
)

// maxWebhookBody bounds how much of a webhook payload is read
const maxWebhookBody = 1 << 20

// webhookPayload is the subset of the Zendesk webhook body the handler
// needs. Ticket IDs arrive as numbers or strings depending on the webhook
// template, so the field is decoded leniently.
type webhookPayload struct {
	TicketID    flexibleID `json:"ticket_id"`
	Description string     `json:"description"`
}

// flexibleID decodes a JSON number or string into a string
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// Runner starts matching runs
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// TicketStorer persists raw ticket contexts
type TicketStorer interface {
	Put(ctx context.Context, tc *ticket.Context) (string, error)
}

// Enqueuer accepts embedding jobs
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.EmbeddingJob) error
}

// WebhookHandler ingests Zendesk webhook deliveries
type WebhookHandler struct {
	secret   string
	runner   Runner
	contexts pipeline.ContextBuilder
	store    TicketStorer
	jobs     Enqueuer
	onIngest func()
	logger   *logging.Logger
}

// WebhookOption configures a WebhookHandler
type WebhookOption func(*WebhookHandler)

// WithIngestObserver registers a hook called for every accepted delivery
func WithIngestObserver(fn func()) WebhookOption {
	return func(h *WebhookHandler) {
		h.onIngest = fn
	}
}

// NewWebhookHandler creates the webhook handler
func NewWebhookHandler(secret string, runner Runner, contexts pipeline.ContextBuilder, store TicketStorer, jobs Enqueuer, opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{
		secret:   secret,
		runner:   runner,
		contexts: contexts,
		store:    store,
		jobs:     jobs,
		logger:   logging.GetLogger().WithComponent("webhook_handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes POST /api/v1/webhooks/zendesk. The signature is checked
// against the raw body before any decoding happens.
func (h *WebhookHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		BadRequestResponse(c, "Failed to read request body")
		return
	}

	if !webhook.VerifySignature(c.Request.Header, body, h.secret) {
		h.logger.LogWebhookEvent(ctx, "signature_rejected", false, map[string]interface{}{
			"signature": webhook.TruncateSignature(c.GetHeader(webhook.SignatureHeader)),
		})
		UnauthorizedResponse(c, "Invalid webhook signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		BadRequestResponse(c, "Malformed webhook payload")
		return
	}
	ticketID := string(payload.TicketID)
	if ticketID == "" || ticketID == "0" {
		BadRequestResponse(c, "Webhook payload is missing ticket_id")
		return
	}

	h.logger.LogWebhookEvent(ctx, "received", true, map[string]interface{}{
		"ticket_id": ticketID,
	})
	if h.onIngest != nil {
		h.onIngest()
	}

	tc := h.archiveTicket(ctx, ticketID)

	outcome, err := h.runner.Run(ctx, pipeline.Request{
		TicketID:           ticketID,
		Description:        payload.Description,
		Context:            tc,
		RequireEligibility: true,
	})
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, gin.H{
		"ticket_id":       ticketID,
		"session_id":      outcome.SessionID,
		"workflow_mode":   outcome.Mode,
		"recommendations": len(outcome.Result.Recommendations),
		"warnings":        outcome.Warnings,
	})
}

// archiveTicket stores the raw ticket and queues it for embedding. Both
// steps are best effort; ingest never fails because of them. The fetched
// context is returned so the matching run can reuse it instead of fetching
// the same ticket again; nil means no context was fetched.
func (h *WebhookHandler) archiveTicket(ctx context.Context, ticketID string) *ticket.Context {
	if h.store == nil || h.contexts == nil {
		return nil
	}

	tc, err := h.contexts.Build(ctx, ticketID)
	if err != nil {
		h.logger.WithContext(ctx).Warn("Ticket archive fetch failed",
			"ticket_id", ticketID, "error", err.Error())
		return nil
	}

	key, err := h.store.Put(ctx, tc)
	if err != nil {
		h.logger.WithContext(ctx).Warn("Ticket archive store failed",
			"ticket_id", ticketID, "error", err.Error())
		return tc
	}

	if h.jobs != nil {
		if err := h.jobs.Enqueue(ctx, queue.NewEmbeddingJob(ticketID, key)); err != nil {
			h.logger.WithContext(ctx).Warn("Embedding enqueue failed",
				"ticket_id", ticketID, "error", err.Error())
		}
	}
	return tc
}
