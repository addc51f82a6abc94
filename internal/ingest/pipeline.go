package ingest

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"monitor-engine/internal/alerting"
	"monitor-engine/internal/client"
	"monitor-engine/internal/hub"
	"monitor-engine/internal/model"
	"monitor-engine/internal/repository/redis"
	"monitor-engine/internal/repository/scylla"
	"monitor-engine/internal/util"
)

const metricsBatchSize = 50

// Pipeline consumes metric samples from Kafka, validates and stores them,
// feeds the alert manager, and batches accepted samples onto the realtime
// stream.
type Pipeline struct {
	consumer   *client.KafkaConsumer
	validator  *Validator
	metrics    scylla.MetricRepository
	alerts     *alerting.AlertService
	hub        *hub.Hub
	rejections *redis.RejectionCounter

	workers       int
	flushInterval time.Duration
	accepted      chan model.MetricSample
}

func NewPipeline(consumer *client.KafkaConsumer, validator *Validator,
	metrics scylla.MetricRepository, alerts *alerting.AlertService,
	h *hub.Hub, rejections *redis.RejectionCounter,
	workers int, flushInterval time.Duration) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}
	return &Pipeline{
		consumer:      consumer,
		validator:     validator,
		metrics:       metrics,
		alerts:        alerts,
		hub:           h,
		rejections:    rejections,
		workers:       workers,
		flushInterval: flushInterval,
		accepted:      make(chan model.MetricSample, 256),
	}
}

// Run blocks until the context is cancelled or a worker fails hard. Rejected
// samples never stop the loop; only transport failures do.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			return p.consumeLoop(gctx)
		})
	}
	g.Go(func() error {
		p.flushLoop(gctx)
		return nil
	})

	util.Info("Ingestion pipeline started",
		zap.Int("workers", p.workers),
		zap.Duration("flush_interval", p.flushInterval))

	return g.Wait()
}

func (p *Pipeline) consumeLoop(ctx context.Context) error {
	for {
		msg, err := p.consumer.ConsumeMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		p.handleMessage(ctx, msg.Value)
	}
}

func (p *Pipeline) handleMessage(ctx context.Context, raw []byte) {
	var sample model.MetricSample
	if err := json.Unmarshal(raw, &sample); err != nil {
		util.Warn("Dropping undecodable sample", zap.Error(err))
		p.countRejection("unknown")
		return
	}

	if err := p.validator.Validate(&sample); err != nil {
		util.Debug("Dropping invalid sample",
			zap.String("metric_name", sample.MetricName),
			zap.String("source_service", sample.SourceService),
			zap.Error(err))
		p.countRejection(sample.SourceService)
		return
	}

	if err := p.metrics.Save(ctx, &sample); err != nil {
		// evaluation still runs; Kafka redelivery covers the durable write
		util.Error("Failed to persist sample", zap.Error(err))
	}

	verdict := alerting.Evaluate(&sample)
	if _, err := p.alerts.Ingest(ctx, &sample, verdict); err != nil {
		util.Error("Failed to apply breach verdict",
			zap.String("metric_name", sample.MetricName),
			zap.Error(err))
	}

	select {
	case p.accepted <- sample:
	default:
		// broadcast batch full, the durable write above is the record
	}
}

func (p *Pipeline) countRejection(source string) {
	if p.rejections == nil {
		return
	}
	if source == "" {
		source = "unknown"
	}
	if _, err := p.rejections.Increment(source); err != nil {
		util.Debug("Failed to count rejection", zap.Error(err))
	}
}

// flushLoop batches accepted samples into metrics_update messages, flushing
// on size or on the configured interval.
func (p *Pipeline) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]model.MetricSample, 0, metricsBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.hub.Publish(model.StreamMessage{
			Type:    model.StreamMetricsUpdate,
			Metrics: batch,
		})
		batch = make([]model.MetricSample, 0, metricsBatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case sample := <-p.accepted:
			batch = append(batch, sample)
			if len(batch) >= metricsBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
