package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"letterbox/internal/metrics"
	"letterbox/pkg/overlay"
	"letterbox/pkg/queue"
	"letterbox/pkg/storage"
	"letterbox/pkg/store"
)

// Jobs is the render job source.
type Jobs interface {
	Start(ctx context.Context, concurrency int, handler queue.Handler) error
	Close() error
}

// Config holds runtime configuration for the render worker.
type Config struct {
	DatabaseURL    string
	Store          store.Store
	Objects        storage.ObjectStore
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	Jobs           Jobs
	Concurrency    int
	MetricsAddr    string
	Logger         *slog.Logger
}

// Worker renders letter overlays off the request path and stores them where
// the letters API looks first.
type Worker struct {
	store       store.Store
	objects     storage.ObjectStore
	jobs        Jobs
	concurrency int
	metricsAddr string
	logger      *slog.Logger
}

func New(cfg Config) (*Worker, error) {
	if cfg.Jobs == nil {
		return nil, errors.New("job source required")
	}
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
	}
	objects := cfg.Objects
	if objects == nil {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		objects = minioStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		store:       dataStore,
		objects:     objects,
		jobs:        cfg.Jobs,
		concurrency: concurrency,
		metricsAddr: cfg.MetricsAddr,
		logger:      logger,
	}, nil
}

// Handle renders one job. Letters that are gone or have nothing to draw are
// skipped without error so the job is not retried.
func (w *Worker) Handle(ctx context.Context, job queue.RenderJob) error {
	start := time.Now()
	letter, ok, err := w.store.GetLetter(ctx, job.LetterID)
	if err != nil {
		metrics.RecordRender("failed", 0)
		return fmt.Errorf("get letter: %w", err)
	}
	if !ok || !overlay.HasDrawable(letter.BrushStrokes) {
		metrics.RecordRender("skipped", 0)
		w.logger.Info("render_skipped", "job_id", job.ID, "letter_id", job.LetterID, "found", ok)
		return nil
	}
	data, err := overlay.RenderLetter(letter)
	if err != nil {
		metrics.RecordRender("failed", 0)
		return err
	}
	if data == nil {
		metrics.RecordRender("skipped", 0)
		return nil
	}
	if err := w.objects.Put(ctx, storage.OverlayKey(letter.ID), data, "image/png"); err != nil {
		metrics.RecordRender("failed", 0)
		return fmt.Errorf("store overlay: %w", err)
	}
	elapsed := time.Since(start)
	metrics.RecordRender("rendered", elapsed)
	w.logger.Info("render_done", "job_id", job.ID, "letter_id", letter.ID, "bytes", len(data), "duration_ms", elapsed.Milliseconds())
	return nil
}

// Run consumes jobs until ctx is cancelled. With a metrics address it also
// serves /metrics and /healthz.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.jobs.Start(gctx, w.concurrency, w.Handle); err != nil {
			return fmt.Errorf("start consumers: %w", err)
		}
		w.logger.Info("renderer consuming", "concurrency", w.concurrency)
		<-gctx.Done()
		return nil
	})
	if w.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			_, _ = rw.Write([]byte(`{"status":"ok"}`))
		})
		srv := &http.Server{Addr: w.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// Close waits for in-flight jobs and releases the queue and store.
func (w *Worker) Close() error {
	err := w.jobs.Close()
	if c, ok := w.store.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
