// Package recovery detects pipelines stuck in a running state and corrects
// both the pipeline and its latest run.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/shipyardhq/shipyard/internal/clock"
	obsmetrics "github.com/shipyardhq/shipyard/internal/observability/metrics"
	pipelinedomain "github.com/shipyardhq/shipyard/internal/pipeline/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	reasonTimeout        = "pipeline execution timeout"
	reasonNoRuns         = "no pipeline runs found"
	reasonServerShutdown = "server shutdown"
)

var ErrInvalidConfig = errors.New("invalid_sweeper_config")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
	Config  Config              `optional:"true"`
}

type Sweeper struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		db:      p.DB,
		log:     p.Log.Named("recovery.sweeper").With(zap.String("component", "recovery")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		metrics: p.Metrics,
	}, nil
}

// RunForever sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("recovery sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes one sweep under a bounded deadline.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, "recover_stuck_pipelines", 30*time.Second, s.RecoverStuckPipelines)
}

func (s *Sweeper) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	s.metrics.IncJobRun(name)
	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout: the next tick picks up where this
	// sweep stopped.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		s.log.Warn("sweep job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	s.metrics.IncJobError(name)
	return fmt.Errorf("%s: %w", name, err)
}

// RecoverStuckPipelines scans pipelines whose denormalized status is still
// running and corrects each one whose latest run has timed out, finished
// without propagating, or never existed. Failures on one pipeline are
// logged and joined; the sweep continues with the rest.
func (s *Sweeper) RecoverStuckPipelines(ctx context.Context) error {
	now := s.clock.Now()
	var jobErr error
	var lastID int64

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		var pipelines []*pipelinedomain.Pipeline
		err := s.db.WithContext(ctx).
			Where("status = ? AND id > ?", pipelinedomain.StatusRunning, lastID).
			Order("id ASC").
			Limit(s.cfg.BatchSize).
			Find(&pipelines).Error
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(pipelines) == 0 {
			break
		}

		for _, pipeline := range pipelines {
			lastID = int64(pipeline.ID)
			if err := s.recoverPipeline(ctx, pipeline, now); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("pipeline recovery failed",
					zap.String("pipeline_id", pipeline.ID.String()),
					zap.Error(err),
				)
			}
		}
	}

	return jobErr
}

// recoverPipeline applies at most one correction, with the pipeline and
// run updates in a single transaction so a crash cannot leave the pair
// inconsistent.
func (s *Sweeper) recoverPipeline(ctx context.Context, pipeline *pipelinedomain.Pipeline, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run pipelinedomain.PipelineRun
		err := tx.Where("pipeline_id = ?", pipeline.ID).
			Order("started_at DESC").
			First(&run).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.failPipeline(ctx, tx, pipeline.ID, reasonNoRuns, now); err != nil {
				return err
			}
			s.metrics.IncPipelineRecovered("no_runs")
			s.log.Info("pipeline without runs marked failed",
				zap.String("pipeline_id", pipeline.ID.String()),
			)
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case run.Status.IsTerminal():
			// Partial-write anomaly: the run finished but the pipeline's
			// denormalized status was never updated. Propagate only.
			if err := s.setPipelineStatus(ctx, tx, pipeline.ID, run.Status, run.Error, now); err != nil {
				return err
			}
			s.metrics.IncPipelineRecovered("status_propagated")
			s.log.Info("pipeline status propagated from terminal run",
				zap.String("pipeline_id", pipeline.ID.String()),
				zap.String("run_id", run.ID.String()),
				zap.String("status", string(run.Status)),
			)
			return nil

		case now.Sub(run.StartedAt) > s.cfg.RunTimeout:
			if err := s.failRun(ctx, tx, run.ID, reasonTimeout, now); err != nil {
				return err
			}
			if err := s.failPipeline(ctx, tx, pipeline.ID, reasonTimeout, now); err != nil {
				return err
			}
			s.metrics.IncPipelineRecovered("timeout")
			s.log.Info("stuck pipeline marked failed",
				zap.String("pipeline_id", pipeline.ID.String()),
				zap.String("run_id", run.ID.String()),
				zap.Duration("age", now.Sub(run.StartedAt)),
			)
			return nil

		default:
			// Still in flight and within the timeout window.
			return nil
		}
	})
}

// CleanupRunningPipelines unconditionally fails every running pipeline and
// its in-flight runs. Used when the process is being retired.
func (s *Sweeper) CleanupRunningPipelines(ctx context.Context) error {
	now := s.clock.Now()

	var runsAffected, pipelinesAffected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&pipelinedomain.PipelineRun{}).
			Where("status IN ? AND pipeline_id IN (?)",
				[]pipelinedomain.Status{pipelinedomain.StatusPending, pipelinedomain.StatusRunning},
				tx.Model(&pipelinedomain.Pipeline{}).
					Select("id").
					Where("status = ?", pipelinedomain.StatusRunning),
			).
			Updates(map[string]any{
				"status":       pipelinedomain.StatusFailed,
				"error":        reasonServerShutdown,
				"completed_at": now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		runsAffected = result.RowsAffected

		result = tx.Model(&pipelinedomain.Pipeline{}).
			Where("status = ?", pipelinedomain.StatusRunning).
			Updates(map[string]any{
				"status":     pipelinedomain.StatusFailed,
				"error":      reasonServerShutdown,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		pipelinesAffected = result.RowsAffected
		return nil
	})
	if err != nil {
		return fmt.Errorf("cleanup running pipelines: %w", err)
	}

	if pipelinesAffected > 0 || runsAffected > 0 {
		s.log.Info("running pipelines cleaned up on shutdown",
			zap.Int64("pipelines", pipelinesAffected),
			zap.Int64("runs", runsAffected),
		)
	}
	return nil
}

func (s *Sweeper) failRun(ctx context.Context, tx *gorm.DB, runID snowflake.ID, reason string, now time.Time) error {
	return tx.WithContext(ctx).Model(&pipelinedomain.PipelineRun{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"status":       pipelinedomain.StatusFailed,
			"error":        reason,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

func (s *Sweeper) failPipeline(ctx context.Context, tx *gorm.DB, pipelineID snowflake.ID, reason string, now time.Time) error {
	return tx.WithContext(ctx).Model(&pipelinedomain.Pipeline{}).
		Where("id = ?", pipelineID).
		Updates(map[string]any{
			"status":     pipelinedomain.StatusFailed,
			"error":      reason,
			"updated_at": now,
		}).Error
}

func (s *Sweeper) setPipelineStatus(ctx context.Context, tx *gorm.DB, pipelineID snowflake.ID, status pipelinedomain.Status, reason *string, now time.Time) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": now,
	}
	if reason != nil {
		updates["error"] = *reason
	}
	return tx.WithContext(ctx).Model(&pipelinedomain.Pipeline{}).
		Where("id = ?", pipelineID).
		Updates(updates).Error
}
