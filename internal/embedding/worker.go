package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/smefinder/smefinder/internal/queue"
	"github.com/smefinder/smefinder/internal/ticket"
	"github.com/smefinder/smefinder/internal/vector"
	"github.com/smefinder/smefinder/pkg/logging"
)

// dequeueTimeout bounds each blocking poll so shutdown stays responsive
const dequeueTimeout = 5 * time.Second

// TicketReader loads stored ticket contexts by object key
type TicketReader interface {
	Get(ctx context.Context, key string) (*ticket.Context, error)
}

// Upserter writes vectors into the index
type Upserter interface {
	Upsert(ctx context.Context, vectors []vector.Vector) error
}

// Worker drains the embedding queue: for each job it loads the stored
// ticket, embeds it, and upserts the vector with its match metadata.
type Worker struct {
	queue     *queue.Queue
	tickets   TicketReader
	generator Generator
	index     Upserter
	logger    *logging.Logger
}

// NewWorker wires a worker from its collaborators
func NewWorker(q *queue.Queue, tickets TicketReader, generator Generator, index Upserter) *Worker {
	return &Worker{
		queue:     q,
		tickets:   tickets,
		generator: generator,
		index:     index,
		logger:    logging.GetLogger().WithComponent("embedding_worker"),
	}
}

// Run processes jobs until the context is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Embedding worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Embedding worker stopping")
			return ctx.Err()
		default:
		}

		job, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("Dequeue failed", "error", err.Error())
			continue
		}
		if job == nil {
			continue
		}

		if err := w.Process(ctx, job); err != nil {
			job.MarkFailed(err)
			if job.CanRetry() {
				if requeueErr := w.queue.Requeue(ctx, job); requeueErr != nil {
					w.logger.Error("Requeue failed",
						"job_id", job.ID, "error", requeueErr.Error())
				}
			} else if dlErr := w.queue.DeadLetter(ctx, job); dlErr != nil {
				w.logger.Error("Dead-letter failed",
					"job_id", job.ID, "error", dlErr.Error())
			}
		}
	}
}

// Process handles one job end to end
func (w *Worker) Process(ctx context.Context, job *queue.EmbeddingJob) error {
	tc, err := w.tickets.Get(ctx, job.ObjectKey)
	if err != nil {
		return err
	}

	values, err := w.generator.Embed(ctx, tc.EmbeddingText())
	if err != nil {
		return err
	}

	err = w.index.Upsert(ctx, []vector.Vector{{
		ID:     "ticket-" + tc.TicketID,
		Values: values,
		Metadata: map[string]string{
			"ticket_id": tc.TicketID,
			"subject":   tc.Subject,
			"tags":      strings.Join(tc.Tags, ","),
		},
	}})
	if err != nil {
		return err
	}

	w.logger.WithContext(ctx).Info("Ticket embedded",
		"job_id", job.ID, "ticket_id", tc.TicketID, "dimensions", len(values))
	return nil
}
