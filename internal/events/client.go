package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectConversionCompleted is published once per finished conversion run.
const SubjectConversionCompleted = "dataset.dpoconv.conversion.completed"

// ConversionCompleted summarises a run for downstream dataset tooling.
type ConversionCompleted struct {
	RunID          string    `json:"run_id"`
	Source         string    `json:"source"`
	Output         string    `json:"output"`
	Format         string    `json:"format"`
	RecordsRead    int       `json:"records_read"`
	RecordsWritten int       `json:"records_written"`
	RecordsSkipped int       `json:"records_skipped"`
	Timestamp      time.Time `json:"timestamp"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("dpoconv"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// PublishCompleted publishes ev and flushes so the event survives an immediate Close.
func (c *Client) PublishCompleted(ctx context.Context, ev ConversionCompleted) error {
	if err := c.Publish(SubjectConversionCompleted, ev); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectConversionCompleted, err)
	}
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	c.logger.Debug("event published", "subject", SubjectConversionCompleted, "run_id", ev.RunID)
	return nil
}

func (c *Client) Close() {
	c.conn.Close()
}
