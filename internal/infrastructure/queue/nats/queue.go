package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/resilience"
)

const (
	workerGroup       = "reindex-workers"
	completedSuffix   = ".completed"
	drainFlushTimeout = 5 * time.Second
)

// Queue carries reindex requests to workers on subject and broadcasts
// completions on subject + ".completed".
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("resume-context-engine"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishReindex(ctx context.Context, req domain.ReindexRequest) error {
	payload, err := encodeMessage(req)
	if err != nil {
		return err
	}
	return q.publish(ctx, "nats.publish_reindex", q.subject, payload)
}

// PublishReindexed announces a finished reindex to every serving process.
func (q *Queue) PublishReindexed(ctx context.Context, done domain.ReindexCompleted) error {
	payload, err := encodeMessage(done)
	if err != nil {
		return err
	}
	return q.publish(ctx, "nats.publish_reindexed", completedSubject(q.subject), payload)
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}

// SubscribeReindex blocks until ctx ends, then drains the subscription.
// Messages are load-balanced across the worker queue group.
func (q *Queue) SubscribeReindex(ctx context.Context, handler func(context.Context, domain.ReindexRequest) error) error {
	return q.serve(ctx, func(cb nats.MsgHandler) (*nats.Subscription, error) {
		return q.conn.QueueSubscribe(q.subject, workerGroup, cb)
	}, func(handlerCtx context.Context, data []byte) {
		req, err := decodeReindexRequest(data)
		if err != nil {
			slog.Warn("reindex_message_invalid", "error", err)
			return
		}
		if err := handler(handlerCtx, req); err != nil {
			slog.Error("reindex_handler_failed", "force", req.Force, "requested_by", req.RequestedBy, "error", err)
		}
	})
}

// SubscribeReindexed blocks until ctx ends. Every subscriber receives every
// completion, so each API replica reloads its own vectors.
func (q *Queue) SubscribeReindexed(ctx context.Context, handler func(context.Context, domain.ReindexCompleted) error) error {
	return q.serve(ctx, func(cb nats.MsgHandler) (*nats.Subscription, error) {
		return q.conn.Subscribe(completedSubject(q.subject), cb)
	}, func(handlerCtx context.Context, data []byte) {
		done, err := decodeReindexCompleted(data)
		if err != nil {
			slog.Warn("reindexed_message_invalid", "error", err)
			return
		}
		if err := handler(handlerCtx, done); err != nil {
			slog.Error("reindexed_handler_failed", "requested_by", done.RequestedBy, "error", err)
		}
	})
}

func (q *Queue) serve(
	ctx context.Context,
	subscribe func(nats.MsgHandler) (*nats.Subscription, error),
	handle func(context.Context, []byte),
) error {
	sub, err := subscribe(func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		handle(handlerCtx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(drainFlushTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func completedSubject(subject string) string {
	return subject + completedSuffix
}

func encodeMessage(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal queue message: %w", err)
	}
	return payload, nil
}

// decodeReindexRequest treats an empty payload as a non-forced reindex.
func decodeReindexRequest(data []byte) (domain.ReindexRequest, error) {
	var req domain.ReindexRequest
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.ReindexRequest{}, fmt.Errorf("decode reindex request: %w", err)
	}
	return req, nil
}

func decodeReindexCompleted(data []byte) (domain.ReindexCompleted, error) {
	var done domain.ReindexCompleted
	if err := json.Unmarshal(data, &done); err != nil {
		return domain.ReindexCompleted{}, fmt.Errorf("decode reindex completion: %w", err)
	}
	return done, nil
}
