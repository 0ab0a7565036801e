// Package queue is the adapter layer that feeds the core Verifier
// from a Redis-backed job queue and requeues temporary verdicts for a
// delayed retry, outside the core's own in-process retry loop
// (SPEC_FULL.md §5).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"smtpverify/internal/smtp"
	"smtpverify/internal/verify"
)

const (
	mainQueueKey  = "email_queue"
	retryQueueKey = "email_retry_queue"
	retryDelay    = 15 * time.Minute
	retryPoll     = 30 * time.Second
)

// Job is one unit of work read off the main queue.
type Job struct {
	JobID string `json:"jobId"`
	Email string `json:"email"`
}

// ResultSink persists a verify.Result against the job that produced
// it; internal/store.Postgres implements it.
type ResultSink interface {
	Save(ctx context.Context, jobID string, result verify.Result) error
}

// JobQueue pulls jobs from Redis, rate-limits and verifies them, and
// routes temporary verdicts to a delayed-retry sorted set instead of
// the main queue.
type JobQueue struct {
	Redis       *redis.Client
	Verifier    *verify.Verifier
	Store       ResultSink
	RateLimiter *RateLimiterManager
	WorkerCount int
}

// NewJobQueue wires a JobQueue with a 50-worker default pool.
func NewJobQueue(client *redis.Client, v *verify.Verifier, store ResultSink) *JobQueue {
	return &JobQueue{
		Redis:       client,
		Verifier:    v,
		Store:       store,
		RateLimiter: NewRateLimiterManager(),
		WorkerCount: 50,
	}
}

// Run starts the worker pool and the retry monitor; it blocks until
// ctx is cancelled.
func (q *JobQueue) Run(ctx context.Context) {
	jobs := make(chan Job, q.WorkerCount*2)

	for i := 0; i < q.WorkerCount; i++ {
		go q.worker(ctx, i+1, jobs)
	}
	go q.retryMonitor(ctx)

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			return
		default:
		}

		result, err := q.Redis.BRPop(ctx, 5*time.Second, mainQueueKey).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				continue // shutting down; the top-of-loop check will exit
			}
			log.Printf("⚠️  error reading from redis: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("⚠️  failed to parse job json: %v", err)
			continue
		}

		select {
		case jobs <- job:
		default:
			log.Printf("⚠️  worker pool full, dropping job: %s", job.Email)
		}
	}
}

func (q *JobQueue) worker(ctx context.Context, id int, jobs <-chan Job) {
	for job := range jobs {
		q.process(ctx, id, job)
	}
}

func (q *JobQueue) process(ctx context.Context, workerID int, job Job) {
	domain, ok := domainOf(job.Email)
	if !ok {
		log.Printf("[worker %d] ❌ invalid email format: %s", workerID, job.Email)
		q.save(ctx, job, verify.Result{Email: job.Email, Status: smtp.StatusUnknown, Reason: "Invalid email format", Attempts: 1})
		return
	}

	if err := q.RateLimiter.Wait(ctx, domain); err != nil {
		log.Printf("[worker %d] rate limit wait cancelled: %v", workerID, err)
		return
	}

	result := q.Verifier.Verify(ctx, job.Email)

	if result.IsTemporaryError {
		q.scheduleRetry(ctx, workerID, job, result)
		return
	}

	q.save(ctx, job, result)
	log.Printf("[worker %d] %s %s (code %d)", workerID, result.Status, job.Email, result.SMTPCode)
}

func (q *JobQueue) scheduleRetry(ctx context.Context, workerID int, job Job, result verify.Result) {
	payload, err := json.Marshal(job)
	if err != nil {
		log.Printf("[worker %d] ❌ failed to serialize retry job: %v", workerID, err)
		q.save(ctx, job, result)
		return
	}

	score := float64(time.Now().Add(retryDelay).Unix())
	if err := q.Redis.ZAdd(ctx, retryQueueKey, redis.Z{Score: score, Member: string(payload)}).Err(); err != nil {
		log.Printf("[worker %d] ❌ failed to queue retry: %v", workerID, err)
		q.save(ctx, job, result)
		return
	}
	log.Printf("[worker %d] ⏳ %s queued for retry in %s", workerID, job.Email, retryDelay)
}

func (q *JobQueue) retryMonitor(ctx context.Context) {
	ticker := time.NewTicker(retryPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainDueRetries(ctx)
		}
	}
}

func (q *JobQueue) drainDueRetries(ctx context.Context) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	items, err := q.Redis.ZRangeByScore(ctx, retryQueueKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		log.Printf("⚠️  error reading retry queue: %v", err)
		return
	}

	for _, raw := range items {
		removed, err := q.Redis.ZRem(ctx, retryQueueKey, raw).Result()
		if err != nil || removed == 0 {
			// Another retry-monitor tick (or instance) already claimed it.
			continue
		}
		if err := q.Redis.LPush(ctx, mainQueueKey, raw).Err(); err != nil {
			log.Printf("⚠️  failed to requeue retry job: %v", err)
			q.Redis.ZAdd(ctx, retryQueueKey, redis.Z{Score: float64(time.Now().Add(retryDelay).Unix()), Member: raw})
		}
	}
}

func (q *JobQueue) save(ctx context.Context, job Job, result verify.Result) {
	if q.Store == nil {
		return
	}
	if err := q.Store.Save(ctx, job.JobID, result); err != nil {
		log.Printf("❌ failed to persist result for %s: %v", job.Email, err)
	}
}

func domainOf(email string) (string, bool) {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	return strings.ToLower(parts[1]), true
}
