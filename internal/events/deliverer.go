package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/telemed-scheduling/internal/metrics"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, evt Event) error
}

// Deliverer drains the outbox into a DeliveryHandler. Delivery is at least
// once: an event whose handler succeeded but whose mark failed is resent.
type Deliverer struct {
	outbox    Outbox
	handler   DeliveryHandler
	log       *logger.Logger
	metrics   *metrics.SchedulingMetrics
	batchSize int
	now       func() time.Time
}

func NewDeliverer(outbox Outbox, handler DeliveryHandler, log *logger.Logger, m *metrics.SchedulingMetrics) *Deliverer {
	if log == nil {
		log = logger.Default()
	}
	return &Deliverer{
		outbox:    outbox,
		handler:   handler,
		log:       log,
		metrics:   m,
		batchSize: 50,
		now:       time.Now,
	}
}

func (d *Deliverer) WithBatchSize(size int) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

// Drain delivers one batch and returns how many events were marked delivered.
func (d *Deliverer) Drain(ctx context.Context) (int, error) {
	pending, err := d.outbox.FetchPending(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, evt := range pending {
		entry := d.log.WithFields(logrus.Fields{
			"event_id":   evt.ID,
			"event_type": evt.Type,
			"aggregate":  evt.Aggregate,
		})

		if err := d.handler.Handle(ctx, evt); err != nil {
			entry.WithError(err).Error("outbox delivery failed")
			d.metrics.ObserveEventDelivery(string(evt.Type), "failed")
			continue
		}

		ok, err := d.outbox.MarkDelivered(ctx, evt.ID, d.now())
		if err != nil {
			entry.WithError(err).Error("failed to mark outbox event delivered")
			continue
		}
		if ok {
			delivered++
			d.metrics.ObserveEventDelivery(string(evt.Type), "delivered")
			entry.Debug("outbox event delivered")
		}
	}
	return delivered, nil
}

// LogHandler writes events to the log. Used when no Redis stream is configured.
type LogHandler struct {
	log *logger.Logger
}

func NewLogHandler(log *logger.Logger) *LogHandler {
	return &LogHandler{log: log}
}

func (h *LogHandler) Handle(ctx context.Context, evt Event) error {
	h.log.WithFields(logrus.Fields{
		"event_id":     evt.ID,
		"event_type":   evt.Type,
		"aggregate":    evt.Aggregate,
		"aggregate_id": evt.AggregateID,
		"payload":      string(evt.Payload),
	}).Info("domain event")
	return nil
}
