package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	artifactdomain "github.com/shipyardhq/shipyard/internal/artifact/domain"
	"github.com/shipyardhq/shipyard/internal/clock"
	ownerdomain "github.com/shipyardhq/shipyard/internal/owner/domain"
	ownersvc "github.com/shipyardhq/shipyard/internal/owner/service"
	pipelinedomain "github.com/shipyardhq/shipyard/internal/pipeline/domain"
	usagedomain "github.com/shipyardhq/shipyard/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// -- Mocks --

type pipelineReaderMock struct {
	mock.Mock
}

func (m *pipelineReaderMock) GetRun(ctx context.Context, id snowflake.ID) (*pipelinedomain.PipelineRun, error) {
	args := m.Called(ctx, id)
	run := args.Get(0)
	if run == nil {
		return nil, args.Error(1)
	}
	return run.(*pipelinedomain.PipelineRun), args.Error(1)
}

func (m *pipelineReaderMock) GetPipeline(ctx context.Context, id snowflake.ID) (*pipelinedomain.Pipeline, error) {
	args := m.Called(ctx, id)
	pipeline := args.Get(0)
	if pipeline == nil {
		return nil, args.Error(1)
	}
	return pipeline.(*pipelinedomain.Pipeline), args.Error(1)
}

func (m *pipelineReaderMock) LatestRun(ctx context.Context, pipelineID snowflake.ID) (*pipelinedomain.PipelineRun, error) {
	args := m.Called(ctx, pipelineID)
	run := args.Get(0)
	if run == nil {
		return nil, args.Error(1)
	}
	return run.(*pipelinedomain.PipelineRun), args.Error(1)
}

type artifactReaderMock struct {
	mock.Mock
}

func (m *artifactReaderMock) GetByID(ctx context.Context, id snowflake.ID) (*artifactdomain.Artifact, error) {
	args := m.Called(ctx, id)
	artifact := args.Get(0)
	if artifact == nil {
		return nil, args.Error(1)
	}
	return artifact.(*artifactdomain.Artifact), args.Error(1)
}

// -- Fixtures --

const testOwnerID = snowflake.ID(100)

type fixture struct {
	svc       usagedomain.Service
	db        *gorm.DB
	clock     *clock.FakeClock
	pipelines *pipelineReaderMock
	artifacts *artifactReaderMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ownerdomain.User{},
		&ownerdomain.Organization{},
		&usagedomain.UsageRecord{},
	))

	require.NoError(t, db.Create(&ownerdomain.User{
		ID:    testOwnerID,
		Email: "dev@example.com",
		Name:  "Dev",
	}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	pipelines := &pipelineReaderMock{}
	artifacts := &artifactReaderMock{}

	svc := NewService(ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fakeClock,
		Owners:    ownersvc.NewService(ownersvc.Params{DB: db, Log: zap.NewNop()}),
		Pipelines: pipelines,
		Artifacts: artifacts,
	})

	return &fixture{svc: svc, db: db, clock: fakeClock, pipelines: pipelines, artifacts: artifacts}
}

func (f *fixture) storedRecords(t *testing.T) []usagedomain.UsageRecord {
	t.Helper()
	var records []usagedomain.UsageRecord
	require.NoError(t, f.db.Order("created_at ASC, id ASC").Find(&records).Error)
	return records
}

func completedRun(id snowflake.ID, startedAt time.Time, duration time.Duration) *pipelinedomain.PipelineRun {
	completedAt := startedAt.Add(duration)
	return &pipelinedomain.PipelineRun{
		ID:          id,
		PipelineID:  snowflake.ID(10),
		ProjectID:   snowflake.ID(20),
		Status:      pipelinedomain.StatusCompleted,
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
	}
}

// -- Build minutes --

func TestRecordBuildMinutesRoundsUpPartialMinutes(t *testing.T) {
	f := newFixture(t)
	startedAt := f.clock.Now().Add(-time.Hour)
	run := completedRun(1, startedAt, 45*time.Minute+30*time.Second)
	f.pipelines.On("GetRun", mock.Anything, run.ID).Return(run, nil)

	record, err := f.svc.RecordBuildMinutes(context.Background(), run.ID, testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, float64(46), record.Quantity)
	assert.Equal(t, usagedomain.TypeBuildMinutes, record.UsageType)
	assert.Equal(t, run.ID, record.PipelineRunID)
}

func TestRecordBuildMinutesBillsAtLeastOneMinute(t *testing.T) {
	f := newFixture(t)
	run := completedRun(2, f.clock.Now().Add(-time.Minute), time.Second)
	f.pipelines.On("GetRun", mock.Anything, run.ID).Return(run, nil)

	record, err := f.svc.RecordBuildMinutes(context.Background(), run.ID, testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, float64(1), record.Quantity)
}

func TestRecordBuildMinutesZeroDurationBillsNothing(t *testing.T) {
	f := newFixture(t)
	run := completedRun(3, f.clock.Now(), 0)
	f.pipelines.On("GetRun", mock.Anything, run.ID).Return(run, nil)

	record, err := f.svc.RecordBuildMinutes(context.Background(), run.ID, testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, float64(0), record.Quantity)
}

func TestRecordBuildMinutesExactHours(t *testing.T) {
	f := newFixture(t)
	run := completedRun(4, f.clock.Now().Add(-4*time.Hour), 3*time.Hour)
	f.pipelines.On("GetRun", mock.Anything, run.ID).Return(run, nil)

	record, err := f.svc.RecordBuildMinutes(context.Background(), run.ID, testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, float64(180), record.Quantity)
}

func TestRecordBuildMinutesRunNotFound(t *testing.T) {
	f := newFixture(t)
	runID := snowflake.ID(404)
	f.pipelines.On("GetRun", mock.Anything, runID).Return(nil, nil)

	_, err := f.svc.RecordBuildMinutes(context.Background(), runID, testOwnerID)
	require.Error(t, err)
	assert.ErrorIs(t, err, usagedomain.ErrRunNotFound)
	assert.Contains(t, err.Error(), runID.String())
}

func TestRecordBuildMinutesResolvesOwnerFromPipeline(t *testing.T) {
	f := newFixture(t)
	run := completedRun(5, f.clock.Now().Add(-10*time.Minute), 5*time.Minute)
	f.pipelines.On("GetRun", mock.Anything, run.ID).Return(run, nil)
	f.pipelines.On("GetPipeline", mock.Anything, run.PipelineID).Return(&pipelinedomain.Pipeline{
		ID:      run.PipelineID,
		OwnerID: testOwnerID,
	}, nil)

	record, err := f.svc.RecordBuildMinutes(context.Background(), run.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, testOwnerID, record.OwnerID)
	f.pipelines.AssertCalled(t, "GetPipeline", mock.Anything, run.PipelineID)
}

// -- Artifact storage --

func TestRecordArtifactStorageSignedDeltas(t *testing.T) {
	f := newFixture(t)
	artifact := &artifactdomain.Artifact{
		ID:      snowflake.ID(7),
		OwnerID: testOwnerID,
		SizeMB:  512,
	}
	f.artifacts.On("GetByID", mock.Anything, artifact.ID).Return(artifact, nil)

	require.NoError(t, f.svc.RecordArtifactStorage(context.Background(), artifact.ID, usagedomain.ArtifactActionCreated))
	f.clock.Advance(time.Hour)
	require.NoError(t, f.svc.RecordArtifactStorage(context.Background(), artifact.ID, usagedomain.ArtifactActionDeleted))

	records := f.storedRecords(t)
	require.Len(t, records, 2)
	assert.Equal(t, float64(512), records[0].Quantity)
	assert.Equal(t, float64(-512), records[1].Quantity)

	metadata, err := usagedomain.DecodeMetadata(records[1].Metadata)
	require.NoError(t, err)
	assert.Equal(t, "deleted", metadata.Action)
	assert.Equal(t, artifact.ID.String(), metadata.ArtifactID)

	summary, err := f.svc.GetUsageSummary(context.Background(), testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, float64(0), summary.CurrentMonth.StorageGB)
}

func TestRecordArtifactStorageInvalidAction(t *testing.T) {
	f := newFixture(t)
	err := f.svc.RecordArtifactStorage(context.Background(), snowflake.ID(7), "archived")
	assert.ErrorIs(t, err, usagedomain.ErrInvalidAction)
}

func TestRecordArtifactStorageArtifactNotFound(t *testing.T) {
	f := newFixture(t)
	f.artifacts.On("GetByID", mock.Anything, mock.Anything).Return(nil, nil)

	err := f.svc.RecordArtifactStorage(context.Background(), snowflake.ID(404), usagedomain.ArtifactActionCreated)
	assert.ErrorIs(t, err, usagedomain.ErrArtifactNotFound)
}

// -- Record usage --

func TestRecordUsageRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordUsage(context.Background(), usagedomain.RecordUsageRequest{
		OwnerID:   testOwnerID,
		UsageType: "network_egress",
		Quantity:  1,
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidUsageType)

	_, err = f.svc.RecordUsage(context.Background(), usagedomain.RecordUsageRequest{
		UsageType: usagedomain.TypeBuildMinutes,
		Quantity:  1,
	})
	assert.ErrorIs(t, err, ownerdomain.ErrInvalidOwner)
}

func TestRecordUsageUnknownOwnerRollsBack(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordUsage(context.Background(), usagedomain.RecordUsageRequest{
		OwnerID:   snowflake.ID(999),
		UsageType: usagedomain.TypeBuildMinutes,
		Quantity:  5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ownerdomain.ErrOwnerNotFound)
	assert.Empty(t, f.storedRecords(t))
}

func TestRecordUsageAccumulatesOwnerSummary(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.svc.RecordUsage(context.Background(), usagedomain.RecordUsageRequest{
			OwnerID:   testOwnerID,
			UsageType: usagedomain.TypeBuildMinutes,
			Quantity:  10,
		})
		require.NoError(t, err)
	}

	var user ownerdomain.User
	require.NoError(t, f.db.First(&user, "id = ?", testOwnerID).Error)
	summary, err := ownerdomain.DecodeSummary(user.UsageSummary)
	require.NoError(t, err)
	assert.Equal(t, float64(30), summary.Total("2026-03", string(usagedomain.TypeBuildMinutes)))
}

// -- Summary --

func TestGetUsageSummaryEmptyOwner(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.GetUsageSummary(context.Background(), testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, float64(0), summary.CurrentMonth.BuildMinutes)
	assert.Equal(t, float64(0), summary.CurrentMonth.StorageGB)
}

func TestGetUsageSummaryCurrentMonth(t *testing.T) {
	f := newFixture(t)
	run := completedRun(8, f.clock.Now().Add(-time.Hour), 30*time.Minute)
	f.pipelines.On("GetRun", mock.Anything, run.ID).Return(run, nil)
	artifact := &artifactdomain.Artifact{ID: snowflake.ID(9), OwnerID: testOwnerID, SizeMB: 2048}
	f.artifacts.On("GetByID", mock.Anything, artifact.ID).Return(artifact, nil)

	_, err := f.svc.RecordBuildMinutes(context.Background(), run.ID, testOwnerID)
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordArtifactStorage(context.Background(), artifact.ID, usagedomain.ArtifactActionCreated))

	summary, err := f.svc.GetUsageSummary(context.Background(), testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, float64(30), summary.CurrentMonth.BuildMinutes)
	assert.Equal(t, float64(2), summary.CurrentMonth.StorageGB)
}

// -- List --

func TestListPaginatesAndFilters(t *testing.T) {
	f := newFixture(t)
	artifact := &artifactdomain.Artifact{ID: snowflake.ID(11), OwnerID: testOwnerID, SizeMB: 100}
	f.artifacts.On("GetByID", mock.Anything, artifact.ID).Return(artifact, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.RecordArtifactStorage(context.Background(), artifact.ID, usagedomain.ArtifactActionCreated))
		f.clock.Advance(time.Minute)
	}

	resp, err := f.svc.List(context.Background(), usagedomain.ListUsageRequest{
		OwnerID:  testOwnerID,
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Len(t, resp.UsageRecords, 2)
	assert.True(t, resp.HasMore)
	assert.NotEmpty(t, resp.NextPageToken)

	next, err := f.svc.List(context.Background(), usagedomain.ListUsageRequest{
		OwnerID:   testOwnerID,
		PageSize:  2,
		PageToken: resp.NextPageToken,
	})
	require.NoError(t, err)
	assert.Len(t, next.UsageRecords, 1)
	assert.False(t, next.HasMore)

	filtered, err := f.svc.List(context.Background(), usagedomain.ListUsageRequest{
		OwnerID:   testOwnerID,
		UsageType: usagedomain.TypeBuildMinutes,
		PageSize:  10,
	})
	require.NoError(t, err)
	assert.Empty(t, filtered.UsageRecords)
}
