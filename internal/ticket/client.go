package ticket

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/smefinder/smefinder/pkg/config"
	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
)

// Client talks to the Zendesk REST API using API-token basic auth.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a Zendesk API client from configuration
func NewClient(cfg config.ZendeskConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL(),
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.GetLogger().WithComponent("zendesk"),
	}
}

// Ticket is the subset of Zendesk ticket fields the pipeline consumes
type Ticket struct {
	ID          int64    `json:"id"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	RequesterID int64    `json:"requester_id"`
	AssigneeID  int64    `json:"assignee_id"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Comment is a single ticket comment
type Comment struct {
	ID        int64  `json:"id"`
	AuthorID  int64  `json:"author_id"`
	Body      string `json:"body"`
	Public    bool   `json:"public"`
	CreatedAt string `json:"created_at"`
}

// User is a Zendesk user record
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// GetTicket fetches a ticket by ID
func (c *Client) GetTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var response struct {
		Ticket Ticket `json:"ticket"`
	}
	path := fmt.Sprintf("/api/v2/tickets/%s.json", ticketID)
	if err := c.get(ctx, path, &response); err != nil {
		return nil, err
	}
	return &response.Ticket, nil
}

// GetComments fetches all comments on a ticket, oldest first
func (c *Client) GetComments(ctx context.Context, ticketID string) ([]Comment, error) {
	var response struct {
		Comments []Comment `json:"comments"`
	}
	path := fmt.Sprintf("/api/v2/tickets/%s/comments.json", ticketID)
	if err := c.get(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Comments, nil
}

// GetUser fetches a user record by ID
func (c *Client) GetUser(ctx context.Context, userID int64) (*User, error) {
	var response struct {
		User User `json:"user"`
	}
	path := fmt.Sprintf("/api/v2/users/%d.json", userID)
	if err := c.get(ctx, path, &response); err != nil {
		return nil, err
	}
	return &response.User, nil
}

// UpdateRequest carries the mutation applied by UpdateTicket
type UpdateRequest struct {
	InternalNote string
	AddTags      []string
}

// UpdateTicket appends an internal note and/or tags to a ticket
func (c *Client) UpdateTicket(ctx context.Context, ticketID string, update UpdateRequest) error {
	type comment struct {
		Body   string `json:"body"`
		Public bool   `json:"public"`
	}
	body := struct {
		Ticket struct {
			Comment *comment `json:"comment,omitempty"`
			Tags    []string `json:"additional_tags,omitempty"`
		} `json:"ticket"`
	}{}
	if update.InternalNote != "" {
		body.Ticket.Comment = &comment{Body: update.InternalNote, Public: false}
	}
	body.Ticket.Tags = update.AddTags

	path := fmt.Sprintf("/api/v2/tickets/%s.json", ticketID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var bodyReader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.NewInternalError("Failed to encode request body").WithCause(err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.NewInternalError("Failed to create request").WithCause(err)
	}
	req.Header.Set("Authorization", "Basic "+c.basicAuth())
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewTimeoutError("Zendesk request").WithCause(err)
		}
		return errors.NewExternalError("zendesk", "Zendesk request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.NewExternalError("zendesk", "Failed to decode Zendesk response").WithCause(err)
		}
	}
	return nil
}

// checkStatus maps non-2xx responses onto the error taxonomy. 429 carries
// the Retry-After hint so the retry layer can honor it.
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		appErr := errors.NewRateLimitError("Zendesk rate limit exceeded")
		if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
			appErr = appErr.WithRetryAfter(after)
		}
		return appErr
	case http.StatusNotFound:
		return errors.NewNotFoundError("Zendesk resource")
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewAuthenticationError("Zendesk rejected the API credentials")
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return errors.NewValidationError("Zendesk rejected the request").
			WithDetail("response", readErrorBody(resp))
	default:
		return errors.NewExternalError("zendesk",
			fmt.Sprintf("Zendesk returned status %d", resp.StatusCode))
	}
}

func (c *Client) basicAuth() string {
	credentials := fmt.Sprintf("%s/token:%s", c.email, c.apiToken)
	return base64.StdEncoding.EncodeToString([]byte(credentials))
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if err != nil {
		return ""
	}
	return string(data)
}
