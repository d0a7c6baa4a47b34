package recovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shipyardhq/shipyard/internal/clock"
	pipelinedomain "github.com/shipyardhq/shipyard/internal/pipeline/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSweeper(t *testing.T) (*Sweeper, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&pipelinedomain.Pipeline{},
		&pipelinedomain.PipelineRun{},
	))

	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	s, err := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fakeClock,
		Config: Config{
			SweepInterval: time.Minute,
			RunTimeout:    30 * time.Minute,
			BatchSize:     10,
		},
	})
	require.NoError(t, err)
	return s, db, fakeClock
}

func seedPipeline(t *testing.T, db *gorm.DB, id snowflake.ID, status pipelinedomain.Status) {
	t.Helper()
	require.NoError(t, db.Create(&pipelinedomain.Pipeline{
		ID:      id,
		OwnerID: 100,
		Name:    "build",
		Status:  status,
	}).Error)
}

func seedRun(t *testing.T, db *gorm.DB, id, pipelineID snowflake.ID, status pipelinedomain.Status, startedAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&pipelinedomain.PipelineRun{
		ID:         id,
		PipelineID: pipelineID,
		Status:     status,
		StartedAt:  startedAt,
	}).Error)
}

func fetchPipeline(t *testing.T, db *gorm.DB, id snowflake.ID) pipelinedomain.Pipeline {
	t.Helper()
	var pipeline pipelinedomain.Pipeline
	require.NoError(t, db.First(&pipeline, "id = ?", id).Error)
	return pipeline
}

func fetchRun(t *testing.T, db *gorm.DB, id snowflake.ID) pipelinedomain.PipelineRun {
	t.Helper()
	var run pipelinedomain.PipelineRun
	require.NoError(t, db.First(&run, "id = ?", id).Error)
	return run
}

func TestRecoverStuckPipelinesTimesOutOldRuns(t *testing.T) {
	s, db, fakeClock := newSweeper(t)
	now := fakeClock.Now()
	seedPipeline(t, db, 1, pipelinedomain.StatusRunning)
	seedRun(t, db, 11, 1, pipelinedomain.StatusRunning, now.Add(-31*time.Minute))

	require.NoError(t, s.RecoverStuckPipelines(context.Background()))

	run := fetchRun(t, db, 11)
	assert.Equal(t, pipelinedomain.StatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, "pipeline execution timeout", *run.Error)
	require.NotNil(t, run.CompletedAt)
	assert.WithinDuration(t, now, *run.CompletedAt, time.Second)

	pipeline := fetchPipeline(t, db, 1)
	assert.Equal(t, pipelinedomain.StatusFailed, pipeline.Status)
	require.NotNil(t, pipeline.Error)
	assert.Equal(t, "pipeline execution timeout", *pipeline.Error)
}

func TestRecoverStuckPipelinesLeavesFreshRunsAlone(t *testing.T) {
	s, db, fakeClock := newSweeper(t)
	seedPipeline(t, db, 1, pipelinedomain.StatusRunning)
	seedRun(t, db, 11, 1, pipelinedomain.StatusRunning, fakeClock.Now().Add(-29*time.Minute))

	require.NoError(t, s.RecoverStuckPipelines(context.Background()))

	assert.Equal(t, pipelinedomain.StatusRunning, fetchRun(t, db, 11).Status)
	assert.Equal(t, pipelinedomain.StatusRunning, fetchPipeline(t, db, 1).Status)
}

func TestRecoverStuckPipelinesFailsPipelineWithoutRuns(t *testing.T) {
	s, db, _ := newSweeper(t)
	seedPipeline(t, db, 1, pipelinedomain.StatusRunning)

	require.NoError(t, s.RecoverStuckPipelines(context.Background()))

	pipeline := fetchPipeline(t, db, 1)
	assert.Equal(t, pipelinedomain.StatusFailed, pipeline.Status)
	require.NotNil(t, pipeline.Error)
	assert.Equal(t, "no pipeline runs found", *pipeline.Error)
}

func TestRecoverStuckPipelinesPropagatesTerminalRunStatus(t *testing.T) {
	s, db, fakeClock := newSweeper(t)
	seedPipeline(t, db, 1, pipelinedomain.StatusRunning)
	seedRun(t, db, 11, 1, pipelinedomain.StatusCompleted, fakeClock.Now().Add(-2*time.Hour))

	require.NoError(t, s.RecoverStuckPipelines(context.Background()))

	pipeline := fetchPipeline(t, db, 1)
	assert.Equal(t, pipelinedomain.StatusCompleted, pipeline.Status)
	assert.Nil(t, pipeline.Error)

	// The run itself is already terminal and stays untouched.
	run := fetchRun(t, db, 11)
	assert.Equal(t, pipelinedomain.StatusCompleted, run.Status)
	assert.Nil(t, run.CompletedAt)
}

func TestRecoverStuckPipelinesUsesLatestRun(t *testing.T) {
	s, db, fakeClock := newSweeper(t)
	now := fakeClock.Now()
	seedPipeline(t, db, 1, pipelinedomain.StatusRunning)
	seedRun(t, db, 11, 1, pipelinedomain.StatusFailed, now.Add(-3*time.Hour))
	seedRun(t, db, 12, 1, pipelinedomain.StatusRunning, now.Add(-10*time.Minute))

	require.NoError(t, s.RecoverStuckPipelines(context.Background()))

	// Latest run is fresh, so the earlier failed run must not win.
	assert.Equal(t, pipelinedomain.StatusRunning, fetchPipeline(t, db, 1).Status)
	assert.Equal(t, pipelinedomain.StatusRunning, fetchRun(t, db, 12).Status)
}

func TestRecoverStuckPipelinesSweepsBeyondOneBatch(t *testing.T) {
	s, db, fakeClock := newSweeper(t)
	now := fakeClock.Now()
	for i := 1; i <= 25; i++ {
		seedPipeline(t, db, snowflake.ID(i), pipelinedomain.StatusRunning)
		seedRun(t, db, snowflake.ID(1000+i), snowflake.ID(i), pipelinedomain.StatusRunning, now.Add(-time.Hour))
	}

	require.NoError(t, s.RecoverStuckPipelines(context.Background()))

	var remaining int64
	require.NoError(t, db.Model(&pipelinedomain.Pipeline{}).
		Where("status = ?", pipelinedomain.StatusRunning).
		Count(&remaining).Error)
	assert.Equal(t, int64(0), remaining)
}

func TestRunJobTreatsDeadlineAsSoftTimeout(t *testing.T) {
	s, _, _ := newSweeper(t)

	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestCleanupRunningPipelines(t *testing.T) {
	s, db, fakeClock := newSweeper(t)
	now := fakeClock.Now()
	seedPipeline(t, db, 1, pipelinedomain.StatusRunning)
	seedRun(t, db, 11, 1, pipelinedomain.StatusRunning, now.Add(-5*time.Minute))
	seedPipeline(t, db, 2, pipelinedomain.StatusCompleted)
	seedRun(t, db, 21, 2, pipelinedomain.StatusCompleted, now.Add(-time.Hour))

	require.NoError(t, s.CleanupRunningPipelines(context.Background()))

	pipeline := fetchPipeline(t, db, 1)
	assert.Equal(t, pipelinedomain.StatusFailed, pipeline.Status)
	require.NotNil(t, pipeline.Error)
	assert.Equal(t, "server shutdown", *pipeline.Error)

	run := fetchRun(t, db, 11)
	assert.Equal(t, pipelinedomain.StatusFailed, run.Status)
	require.NotNil(t, run.CompletedAt)

	// Finished work is left alone.
	assert.Equal(t, pipelinedomain.StatusCompleted, fetchPipeline(t, db, 2).Status)
	assert.Equal(t, pipelinedomain.StatusCompleted, fetchRun(t, db, 21).Status)
}
