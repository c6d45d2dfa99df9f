package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/certeva/certexam-backend/internal/config"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker consumes persist_results_queue and writes terminal attempt
// outcomes to PostgreSQL in bulk, then clears the matching autosave
// buffers in Redis.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

type resultPayload struct {
	AttemptID    string  `json:"attempt_id"`
	CandidateID  int     `json:"candidate_id"`
	ExamID       string  `json:"exam_id"`
	State        string  `json:"state"`
	SubmitReason *string `json:"submit_reason,omitempty"`
	Percentage   *int    `json:"percentage,omitempty"`
	Passed       *bool   `json:"passed,omitempty"`
	Answers      string  `json:"answers"`
	CompletedAt  int64   `json:"completed_at"`
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]*resultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p resultPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*resultPayload) {
	if len(batch) == 0 {
		return
	}

	failed := make([]*resultPayload, 0)
	for _, p := range batch {
		if err := w.persistSingle(ctx, p); err != nil {
			w.log.Error().Err(err).Str("attempt_id", p.AttemptID).Msg("Persist result failed, requeueing")
			failed = append(failed, p)
		}
	}

	if len(failed) > 0 {
		pipe := w.rdb.Pipeline()
		for _, p := range failed {
			raw, _ := json.Marshal(p)
			pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
		}
		_, _ = pipe.Exec(ctx)
		return
	}

	// Outcomes are durable; the Redis autosave buffers are no longer needed.
	w.bulkClearAutosavedAnswers(ctx, batch)
}

func (w *ResultWorker) persistSingle(ctx context.Context, p *resultPayload) error {
	attemptID, err := uuid.Parse(p.AttemptID)
	if err != nil {
		w.log.Error().Str("attempt_id", p.AttemptID).Msg("Dropping result with invalid UUID")
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE attempts
		 SET state = $1,
		     submit_reason = $2,
		     percentage = $3,
		     passed = $4,
		     answers = $5::jsonb,
		     completed_at = $6
		 WHERE id = $7`,
		p.State, p.SubmitReason, p.Percentage, p.Passed, p.Answers,
		time.Unix(p.CompletedAt, 0), attemptID,
	)
	return err
}

func (w *ResultWorker) bulkClearAutosavedAnswers(ctx context.Context, batch []*resultPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range batch {
		pipe.Del(ctx, config.CacheKey.CandidateAnswersKey(p.ExamID, p.CandidateID))
	}
	_, _ = pipe.Exec(ctx)
}
