package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/agribeta/agribeta/libs/db"
	"github.com/agribeta/agribeta/services/api-service/internal/metrics"
	"github.com/jackc/pgx/v5"
)

const maxBackoff = 30 * time.Second

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
	// Retain keeps published rows this long before pruning; zero keeps them.
	Retain time.Duration
}

// Publisher relays committed outbox rows to a Sink. Rows are marked
// published only after the sink accepted them, so consumers must dedupe.
type Publisher struct {
	pool   *db.Pool
	repo   *Repository
	sink   Sink
	logger *slog.Logger
	cfg    PublisherConfig
}

func NewPublisher(pool *db.Pool, repo *Repository, sink Sink, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{pool: pool, repo: repo, sink: sink, logger: logger, cfg: cfg}
}

// Run drains the outbox until ctx is done. A full batch is followed by
// another one right away; sink failures back off up to maxBackoff.
func (p *Publisher) Run(ctx context.Context) {
	wait := p.cfg.PollEvery
	lastPrune := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := p.publishBatch(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			metrics.OutboxFailuresTotal.Inc()
			wait = min(max(wait*2, p.cfg.PollEvery), maxBackoff)
			p.logger.Error("outbox publish failed", "err", err, "retry_in", wait.String())
		case n == p.cfg.BatchSize:
			wait = 0
		default:
			wait = p.cfg.PollEvery
		}

		if p.cfg.Retain > 0 && time.Since(lastPrune) > time.Hour {
			lastPrune = time.Now()
			p.prune(ctx)
		}
		timer.Reset(wait)
	}
}

func (p *Publisher) publishBatch(ctx context.Context) (int, error) {
	var published []Record
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.Claim(ctx, tx, p.cfg.BatchSize)
		if err != nil || len(records) == 0 {
			return err
		}
		if err := p.sink.Publish(ctx, records); err != nil {
			return err
		}
		if err := p.repo.MarkPublished(ctx, tx, records); err != nil {
			return err
		}
		published = records
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, r := range published {
		metrics.OutboxPublishedTotal.WithLabelValues(r.EventType).Inc()
	}
	if len(published) > 0 {
		p.logger.Debug("outbox batch published", "count", len(published))
	}
	return len(published), nil
}

func (p *Publisher) prune(ctx context.Context) {
	n, err := p.repo.Prune(ctx, time.Now().Add(-p.cfg.Retain))
	if err != nil {
		p.logger.Warn("outbox prune failed", "err", err)
		return
	}
	if n > 0 {
		p.logger.Info("outbox pruned", "rows", n)
	}
}
