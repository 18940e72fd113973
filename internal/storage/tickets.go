package storage

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/smefinder/smefinder/internal/ticket"
	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
)

// s3API is the subset of the S3 client the store uses
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TicketStore persists raw ticket contexts to S3 for the embedding worker
// and for replay
type TicketStore struct {
	client s3API
	bucket string
	now    func() time.Time
	logger *logging.Logger
}

// NewTicketStore creates a store writing to the given bucket
func NewTicketStore(client *s3.Client, bucket string) *TicketStore {
	return &TicketStore{
		client: client,
		bucket: bucket,
		now:    time.Now,
		logger: logging.GetLogger().WithComponent("ticket_store"),
	}
}

// Key returns the date-partitioned object key for a ticket
func (s *TicketStore) Key(ticketID string) string {
	t := s.now().UTC()
	return fmt.Sprintf("raw-tickets/year=%04d/month=%02d/day=%02d/ticket-%s.json",
		t.Year(), t.Month(), t.Day(), ticketID)
}

// Put writes the ticket context as a JSON object
func (s *TicketStore) Put(ctx context.Context, tc *ticket.Context) (string, error) {
	payload, err := json.Marshal(tc)
	if err != nil {
		return "", errors.NewInternalError("Failed to encode ticket").WithCause(err)
	}

	key := s.Key(tc.TicketID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", errors.NewExternalError("s3", "Failed to store ticket").WithCause(err)
	}

	s.logger.WithContext(ctx).Debug("Ticket stored",
		"ticket_id", tc.TicketID, "key", key, "bytes", len(payload))
	return key, nil
}

// Get reads a ticket context back by object key
func (s *TicketStore) Get(ctx context.Context, key string) (*ticket.Context, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if stderrors.As(err, &noSuchKey) {
			return nil, errors.NewNotFoundError("stored ticket").WithCause(err)
		}
		return nil, errors.NewExternalError("s3", "Failed to fetch ticket").WithCause(err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, errors.NewExternalError("s3", "Failed to read ticket body").WithCause(err)
	}

	var tc ticket.Context
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, errors.NewInternalError("Failed to decode stored ticket").WithCause(err)
	}
	return &tc, nil
}
