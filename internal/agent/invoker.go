package agent

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	bartypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/sirupsen/logrus"

	"github.com/smefinder/smefinder/internal/completion"
	"github.com/smefinder/smefinder/pkg/config"
	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
)

// Invoker sends one instruction to the matching agent and returns the
// fully reassembled completion text
type Invoker interface {
	Invoke(ctx context.Context, sessionID, inputText string) (string, error)
}

// BedrockInvoker drives a Bedrock agent. The response arrives as an event
// stream; chunks are appended in arrival order and the text is returned
// only after the stream is consumed to completion.
type BedrockInvoker struct {
	client   *bedrockagentruntime.Client
	agentID  string
	aliasID  string
	timeout  time.Duration
	onInvoke func(outcome string)
	logger   *logging.Logger
}

// InvokerOption configures a BedrockInvoker
type InvokerOption func(*BedrockInvoker)

// WithInvokeObserver registers a hook called after every invocation with
// "success" or "error"
func WithInvokeObserver(fn func(outcome string)) InvokerOption {
	return func(b *BedrockInvoker) {
		b.onInvoke = fn
	}
}

// NewBedrockInvoker creates an invoker for the configured agent
func NewBedrockInvoker(client *bedrockagentruntime.Client, cfg config.BedrockConfig, opts ...InvokerOption) *BedrockInvoker {
	b := &BedrockInvoker{
		client:  client,
		agentID: cfg.AgentID,
		aliasID: cfg.AgentAliasID,
		timeout: cfg.RequestTimeout,
		logger:  logging.GetLogger().WithComponent("bedrock_agent"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Invoke sends the instruction and drains the response stream
func (b *BedrockInvoker) Invoke(ctx context.Context, sessionID, inputText string) (text string, err error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	if b.onInvoke != nil {
		defer func() {
			if err != nil {
				b.onInvoke("error")
			} else {
				b.onInvoke("success")
			}
		}()
	}

	output, err := b.client.InvokeAgent(ctx, &bedrockagentruntime.InvokeAgentInput{
		AgentId:      aws.String(b.agentID),
		AgentAliasId: aws.String(b.aliasID),
		SessionId:    aws.String(sessionID),
		InputText:    aws.String(inputText),
	})
	if err != nil {
		return "", mapInvokeError(err)
	}

	stream := output.GetStream()
	defer stream.Close()

	var acc completion.Accumulator
	for event := range stream.Events() {
		switch e := event.(type) {
		case *bartypes.ResponseStreamMemberChunk:
			acc.Append(e.Value.Bytes)
		default:
			// Trace and return-control events carry no completion text.
		}
	}
	if err := stream.Err(); err != nil {
		return "", mapInvokeError(err)
	}

	b.logger.LogAgentEvent(ctx, "stream_consumed", sessionID, logrus.Fields{
		"chunks": acc.Chunks(),
		"bytes":  acc.Len(),
	})
	return acc.String(), nil
}

// mapInvokeError translates Bedrock service faults onto the error taxonomy
// so the resilience layer can classify them.
func mapInvokeError(err error) error {
	var (
		throttling *bartypes.ThrottlingException
		validation *bartypes.ValidationException
		notFound   *bartypes.ResourceNotFoundException
		denied     *bartypes.AccessDeniedException
		internal   *bartypes.InternalServerException
		dependency *bartypes.DependencyFailedException
		gateway    *bartypes.BadGatewayException
		quota      *bartypes.ServiceQuotaExceededException
	)

	switch {
	case stderrors.As(err, &throttling):
		return errors.NewRateLimitError("Agent throttled the request").WithCause(err)
	case stderrors.As(err, &quota):
		return errors.NewRateLimitError("Agent service quota exceeded").WithCause(err)
	case stderrors.As(err, &validation):
		return errors.NewValidationError("Agent rejected the instruction").WithCause(err)
	case stderrors.As(err, &notFound):
		return errors.NewNotFoundError("agent").WithCause(err)
	case stderrors.As(err, &denied):
		return errors.NewAuthenticationError("Agent access denied").WithCause(err)
	case stderrors.As(err, &internal), stderrors.As(err, &dependency), stderrors.As(err, &gateway):
		return errors.NewExternalError("bedrock", "Agent service error").WithCause(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewTimeoutError("Agent invocation").WithCause(err)
	default:
		return errors.NewAgentError("Agent invocation failed").WithCause(err)
	}
}
