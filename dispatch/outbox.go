package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	// OutboxTopicAssigned is published when a worker is sent to a request.
	OutboxTopicAssigned = "request.assigned"
	// OutboxTopicCompleted is published when a request is completed.
	OutboxTopicCompleted = "request.completed"
	// OutboxTopicCancelled is published when an admin removes a request.
	OutboxTopicCancelled = "request.cancelled"
	// OutboxTopicUpdated is published when an admin edits an open request.
	OutboxTopicUpdated = "request.updated"
)

// OutboxWriter appends an event inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// PGOutbox writes events to the outbox table.
type PGOutbox struct {
	idGenerator func() string
}

// NewOutbox returns a writer that keys events by random UUID.
func NewOutbox() *PGOutbox {
	return &PGOutbox{idGenerator: func() string { return uuid.NewString() }}
}

func (o *PGOutbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatch: marshal outbox payload: %w", err)
	}

	const insertSQL = `
INSERT INTO outbox (id, topic, payload)
VALUES ($1, $2, $3);
`
	if _, err := tx.Exec(ctx, insertSQL, o.idGenerator(), topic, payloadBytes); err != nil {
		return fmt.Errorf("dispatch: insert outbox message: %w", err)
	}
	return nil
}
