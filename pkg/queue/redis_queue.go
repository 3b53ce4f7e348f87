package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"letterbox/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusRendering  = "rendering"
	StatusDone       = "done"
	StatusFailed     = "failed"
	defaultGroupName = "renderers"
)

// RenderJob tracks one overlay render for a letter.
type RenderJob struct {
	ID           string    `json:"id"`
	LetterID     string    `json:"letterId"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler renders one job. A returned error schedules a retry until the
// attempt budget is spent.
type Handler func(context.Context, RenderJob) error

// RenderQueue is a Redis stream with a consumer group. Job state lives in a
// hash per job so the API can report progress.
type RenderQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	logger       *slog.Logger
	groupMu      sync.Mutex
	groupReady   bool
	wg           sync.WaitGroup
}

type Config struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
	Logger     *slog.Logger
}

func New(cfg Config) (*RenderQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = defaultGroupName
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       durationOr(cfg.JobTTL, 24*time.Hour),
		maxRetries:   intOr(cfg.MaxRetries, 3),
		block:        durationOr(cfg.Block, 5*time.Second),
		claimIdle:    durationOr(cfg.ClaimIdle, 30*time.Second),
		retryDelay:   durationOr(cfg.RetryDelay, 2*time.Second),
		maxLen:       int64Or(cfg.MaxLen, 10000),
		readCount:    int64Or(cfg.ReadCount, 10),
		claimCount:   int64Or(cfg.ClaimCount, 10),
		logger:       logger.With("stream", stream, "group", group),
	}, nil
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func int64Or(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}

// Ping checks Redis connectivity.
func (q *RenderQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close waits for running consumers and closes the client.
func (q *RenderQueue) Close() error {
	q.wg.Wait()
	return q.client.Close()
}

// Enqueue schedules an overlay render for letterID.
func (q *RenderQueue) Enqueue(ctx context.Context, letterID string) (RenderJob, error) {
	letterID = strings.TrimSpace(letterID)
	if letterID == "" {
		return RenderJob{}, errors.New("letterId required")
	}
	if err := q.ensureGroup(ctx); err != nil {
		return RenderJob{}, err
	}
	now := time.Now().UTC()
	job := RenderJob{
		ID:        util.NewID(),
		LetterID:  letterID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return RenderJob{}, err
	}
	if err := q.client.XAdd(ctx, q.addArgs(job.ID, job.LetterID)).Err(); err != nil {
		return RenderJob{}, err
	}
	return job, nil
}

// GetJob returns the current state of a job.
func (q *RenderQueue) GetJob(ctx context.Context, jobID string) (RenderJob, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return RenderJob{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return RenderJob{}, false, err
	}
	if len(data) == 0 {
		return RenderJob{}, false, nil
	}
	return decodeRenderJob(jobID, data), true, nil
}

// Start launches concurrency consumers that run until ctx is cancelled.
func (q *RenderQueue) Start(ctx context.Context, concurrency int, handler Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.consumeLoop(ctx, consumer, handler)
		}()
	}
	return nil
}

// ensureGroup creates the consumer group at the start of the stream so jobs
// enqueued before any worker started are still delivered. A failed attempt is
// retried on the next call.
func (q *RenderQueue) ensureGroup(ctx context.Context) error {
	q.groupMu.Lock()
	defer q.groupMu.Unlock()
	if q.groupReady {
		return nil
	}
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	q.groupReady = true
	return nil
}

func (q *RenderQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := q.claimPending(ctx, consumer)
		if err != nil && ctx.Err() == nil {
			q.logger.Warn("render_queue_claim_failed", "consumer", consumer, "err", err)
		}
		for _, msg := range msgs {
			q.handleMessage(ctx, msg, handler)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				q.logger.Warn("render_queue_read_failed", "consumer", consumer, "err", err)
				sleepCtx(ctx, q.retryDelay)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RenderQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

func (q *RenderQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	jobID, _ := msg.Values["job_id"].(string)
	letterID, _ := msg.Values["letter_id"].(string)
	if jobID == "" || letterID == "" {
		q.logger.Warn("render_queue_malformed_message", "message_id", msg.ID)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.markRendering(ctx, jobID, letterID)
	if err != nil {
		q.logger.Error("render_queue_status_failed", "job_id", jobID, "err", err)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	herr := handler(ctx, job)
	if herr == nil {
		_ = q.setStatus(ctx, jobID, StatusDone, "")
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if job.Attempts >= q.maxRetries {
		q.logger.Error("render_job_failed", "job_id", jobID, "letter_id", letterID, "attempts", job.Attempts, "err", herr)
		_ = q.setStatus(ctx, jobID, StatusFailed, herr.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	q.logger.Warn("render_job_retry", "job_id", jobID, "letter_id", letterID, "attempts", job.Attempts, "err", herr)
	_ = q.setStatus(ctx, jobID, StatusQueued, herr.Error())
	if !sleepCtx(ctx, q.retryDelay) {
		return
	}
	if err := q.requeueAndAck(ctx, msg.ID, jobID, letterID); err != nil {
		q.logger.Warn("render_queue_requeue_failed", "job_id", jobID, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (q *RenderQueue) addArgs(jobID, letterID string) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":    jobID,
			"letter_id": letterID,
		},
	}
}

func (q *RenderQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

// requeueAndAck re-adds the job and acknowledges the old message atomically,
// so a failure leaves the original message pending for reclaim.
func (q *RenderQueue) requeueAndAck(ctx context.Context, msgID, jobID, letterID string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, q.addArgs(jobID, letterID))
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RenderQueue) markRendering(ctx context.Context, jobID, letterID string) (RenderJob, error) {
	job, found, err := q.GetJob(ctx, jobID)
	if err != nil {
		return RenderJob{}, err
	}
	if !found {
		job = RenderJob{ID: jobID}
	}
	job.LetterID = letterID
	job.Attempts++
	job.Status = StatusRendering
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return RenderJob{}, err
	}
	return job, nil
}

func (q *RenderQueue) setStatus(ctx context.Context, jobID, status, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.ID = jobID
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RenderQueue) writeStatus(ctx context.Context, job RenderJob) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":        job.ID,
		"letterId":  job.LetterID,
		"status":    job.Status,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, key, payload)
	pipe.Expire(ctx, key, q.jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RenderQueue) jobKey(jobID string) string {
	return fmt.Sprintf("render:%s:%s", q.stream, jobID)
}

func decodeRenderJob(jobID string, data map[string]string) RenderJob {
	job := RenderJob{
		ID:           jobID,
		LetterID:     data["letterId"],
		Status:       data["status"],
		ErrorMessage: data["error"],
	}
	if n, err := strconv.Atoi(data["attempts"]); err == nil {
		job.Attempts = n
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		job.UpdatedAt = t
	}
	return job
}
