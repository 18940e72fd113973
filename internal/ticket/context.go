package ticket

import (
	"context"
	"fmt"
	"strings"

	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
	"github.com/smefinder/smefinder/pkg/resilience"
)

// recentCommentLimit bounds how many trailing comments feed the context
const recentCommentLimit = 5

// Context is the assembled view of a ticket handed to the agent and the
// embedding pipeline
type Context struct {
	TicketID       string   `json:"ticket_id"`
	Subject        string   `json:"subject"`
	Description    string   `json:"description"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	Tags           []string `json:"tags"`
	RequesterName  string   `json:"requester_name"`
	RequesterEmail string   `json:"requester_email"`
	RecentComments []string `json:"recent_comments"`
	CreatedAt      string   `json:"created_at"`
}

// HasTag reports whether the ticket carries the given tag
func (c *Context) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// EmbeddingText renders the ticket as a single document for embedding
func (c *Context) EmbeddingText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", c.Subject)
	fmt.Fprintf(&b, "Description: %s\n", c.Description)
	if len(c.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(c.Tags, ", "))
	}
	for _, comment := range c.RecentComments {
		fmt.Fprintf(&b, "Comment: %s\n", comment)
	}
	return b.String()
}

// Fetcher is the read surface of the ticket system the builder depends on
type Fetcher interface {
	GetTicket(ctx context.Context, ticketID string) (*Ticket, error)
	GetComments(ctx context.Context, ticketID string) ([]Comment, error)
	GetUser(ctx context.Context, userID int64) (*User, error)
}

// ContextBuilder assembles a ticket Context through the resilience layer.
// Ticket and comment fetches are guarded; requester lookup failures only
// degrade the context, they never fail the build.
type ContextBuilder struct {
	fetcher  Fetcher
	executor *resilience.Client
	logger   *logging.Logger
}

// NewContextBuilder creates a builder over the given fetcher
func NewContextBuilder(fetcher Fetcher, executor *resilience.Client) *ContextBuilder {
	return &ContextBuilder{
		fetcher:  fetcher,
		executor: executor,
		logger:   logging.GetLogger().WithComponent("ticket_context"),
	}
}

// Build fetches the ticket, its comments, and the requester, and assembles
// the Context
func (b *ContextBuilder) Build(ctx context.Context, ticketID string) (*Context, error) {
	var ticket *Ticket
	_, err := b.executor.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		var err error
		ticket, err = b.fetcher.GetTicket(ctx, ticketID)
		return nil, err
	})
	if err != nil {
		return nil, err
	}

	tc := &Context{
		TicketID:    ticketID,
		Subject:     ticket.Subject,
		Description: ticket.Description,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		Tags:        ticket.Tags,
		CreatedAt:   ticket.CreatedAt,
	}

	var comments []Comment
	_, err = b.executor.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		var err error
		comments, err = b.fetcher.GetComments(ctx, ticketID)
		return nil, err
	})
	if err != nil {
		b.logger.WithContext(ctx).Warn("Comment fetch failed, continuing without comments",
			"ticket_id", ticketID, "error", err.Error())
	} else {
		tc.RecentComments = recentCommentBodies(comments)
	}

	if ticket.RequesterID != 0 {
		user, err := b.fetcher.GetUser(ctx, ticket.RequesterID)
		if err != nil {
			b.logger.WithContext(ctx).Warn("Requester lookup failed",
				"ticket_id", ticketID, "error", err.Error())
		} else {
			tc.RequesterName = user.Name
			tc.RequesterEmail = user.Email
		}
	}

	return tc, nil
}

func recentCommentBodies(comments []Comment) []string {
	start := len(comments) - recentCommentLimit
	if start < 0 {
		start = 0
	}
	bodies := make([]string, 0, len(comments)-start)
	for _, c := range comments[start:] {
		body := strings.TrimSpace(c.Body)
		if body != "" {
			bodies = append(bodies, body)
		}
	}
	return bodies
}

// IsNotFound reports whether the error means the ticket does not exist.
// The retries-exhausted wrapper preserves the underlying type, so this
// holds through the resilience layer.
func IsNotFound(err error) bool {
	return errors.IsType(err, errors.ErrorTypeNotFound)
}
