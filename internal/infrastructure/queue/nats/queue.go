// Package nats carries document reclassification requests between the API and
// the worker over a NATS subject with a shared queue group.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/resilience"
)

const queueGroup = "reclassify-workers"

type reclassifyMessage struct {
	DocID string `json:"doc_id"`
}

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

func Connect(url, subject string, executor *resilience.Executor, logger *slog.Logger) (*Queue, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats_reconnected", "url", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{conn: conn, subject: subject, executor: executor, logger: logger}, nil
}

func (q *Queue) PublishReclassify(ctx context.Context, docID string) error {
	payload, err := json.Marshal(reclassifyMessage{DocID: docID})
	if err != nil {
		return fmt.Errorf("publish reclassify: marshal: %w", err)
	}

	publish := func(context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("publish reclassify: %w", err)
		}
		return q.conn.Flush()
	}
	if q.executor == nil {
		return publish(ctx)
	}
	return q.executor.Execute(ctx, "nats.publish", publish, nil)
}

// SubscribeReclassify consumes requests until the context is cancelled.
// Handler errors are logged and the message is dropped; the worker re-runs
// classification on the next explicit request rather than redelivering.
func (q *Queue) SubscribeReclassify(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		var request reclassifyMessage
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			q.logger.Error("reclassify_message_malformed", "error", err)
			return
		}
		if err := handler(ctx, request.DocID); err != nil {
			q.logger.Error("reclassify_failed", "doc_id", request.DocID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe reclassify: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	return nil
}

func (q *Queue) Close() {
	q.conn.Close()
}
