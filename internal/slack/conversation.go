package slack

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
	"github.com/smefinder/smefinder/pkg/types"
)

// api is the subset of the Slack client the service uses
type api interface {
	CreateConversationContext(ctx context.Context, params goslack.CreateConversationParams) (*goslack.Channel, error)
	InviteUsersToConversationContext(ctx context.Context, channelID string, users ...string) (*goslack.Channel, error)
	PostMessageContext(ctx context.Context, channelID string, options ...goslack.MsgOption) (string, string, error)
	GetUserByEmailContext(ctx context.Context, email string) (*goslack.User, error)
	GetPermalinkContext(ctx context.Context, params *goslack.PermalinkParameters) (string, error)
}

// Service creates handoff conversations for matched tickets
type Service struct {
	client api
	logger *logging.Logger
}

// NewService creates a Slack service from a bot token
func NewService(botToken string) *Service {
	return &Service{
		client: goslack.New(botToken),
		logger: logging.GetLogger().WithComponent("slack"),
	}
}

// Conversation describes a created handoff channel
type Conversation struct {
	ChannelID   string
	ChannelName string
	Permalink   string
	Invited     []string
}

// CreateHandoff creates a channel named after the ticket, invites the
// recommended FDEs, and posts the recommendation summary. Invite failures
// for individual users are logged and skipped, never fatal.
func (s *Service) CreateHandoff(ctx context.Context, ticketID string, result *types.Result) (*Conversation, error) {
	channel, err := s.client.CreateConversationContext(ctx, goslack.CreateConversationParams{
		ChannelName: channelName(ticketID),
	})
	if err != nil {
		return nil, mapSlackError(err)
	}

	conv := &Conversation{
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
	}

	for _, rec := range result.Recommendations {
		userID := rec.SlackID
		if userID == "" && rec.Email != "" {
			user, err := s.client.GetUserByEmailContext(ctx, rec.Email)
			if err != nil {
				s.logger.WithContext(ctx).Warn("Slack user lookup failed",
					"email", rec.Email, "error", err.Error())
				continue
			}
			userID = user.ID
		}
		if userID == "" {
			continue
		}
		if _, err := s.client.InviteUsersToConversationContext(ctx, channel.ID, userID); err != nil {
			s.logger.WithContext(ctx).Warn("Slack invite failed",
				"user_id", userID, "error", err.Error())
			continue
		}
		conv.Invited = append(conv.Invited, userID)
	}

	_, ts, err := s.client.PostMessageContext(ctx, channel.ID,
		goslack.MsgOptionText(summaryMessage(ticketID, result), false))
	if err != nil {
		return nil, mapSlackError(err)
	}

	permalink, err := s.client.GetPermalinkContext(ctx, &goslack.PermalinkParameters{
		Channel: channel.ID,
		Ts:      ts,
	})
	if err != nil {
		// The conversation exists; a missing permalink only degrades the link.
		s.logger.WithContext(ctx).Warn("Slack permalink lookup failed",
			"channel_id", channel.ID, "error", err.Error())
	} else {
		conv.Permalink = permalink
	}

	return conv, nil
}

func channelName(ticketID string) string {
	return "ticket-" + strings.ToLower(ticketID)
}

func summaryMessage(ticketID string, result *types.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SME recommendations for ticket %s:\n", ticketID)
	for i, rec := range result.Recommendations {
		fmt.Fprintf(&b, "%d. %s (%s), confidence %.2f\n", i+1, rec.Name, rec.Email, rec.Confidence)
		if rec.Reasoning != "" {
			fmt.Fprintf(&b, "   %s\n", rec.Reasoning)
		}
	}
	if result.SourceTicketURL != "" {
		fmt.Fprintf(&b, "Ticket: %s\n", result.SourceTicketURL)
	}
	return b.String()
}

func mapSlackError(err error) error {
	var rateLimited *goslack.RateLimitedError
	if stderrors.As(err, &rateLimited) {
		return errors.NewRateLimitError("Slack rate limit exceeded").
			WithRetryAfter(rateLimited.RetryAfter).
			WithCause(err)
	}
	return errors.NewExternalError("slack", "Slack request failed").WithCause(err)
}
