package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/apperrors"
	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/models"
)

func newSchedulerFixture(t *testing.T) (*Scheduler, *insightServiceFixture, *fakeInsightRepo) {
	t.Helper()
	f := newInsightServiceFixture(t)

	optimizer := NewFeedbackOptimizer(newFakeQueryRepo(), f.datasets, newFakeExemplarRepo(), &config.OptimizerConfig{
		MaxTrainSize: 100,
		MinExamples:  1,
	}, zap.NewNop())

	scheduler := NewScheduler(
		config.SchedulerConfig{
			InsightsSpec:  "@hourly",
			OptimizerSpec: "@daily",
			RetentionSpec: "@midnight",
			RetentionDays: 30,
		},
		insightsConfig(),
		f.service,
		optimizer,
		f.insights,
		f.datasets,
		zap.NewNop(),
	)
	return scheduler, f, f.insights
}

func TestSchedulerStartAndStop(t *testing.T) {
	scheduler, _, _ := newSchedulerFixture(t)
	require.NoError(t, scheduler.Start())
	scheduler.Stop()
}

func TestSchedulerRejectsInvalidSpecs(t *testing.T) {
	f := newInsightServiceFixture(t)
	optimizer := NewFeedbackOptimizer(newFakeQueryRepo(), f.datasets, newFakeExemplarRepo(), &config.OptimizerConfig{
		MaxTrainSize: 100,
		MinExamples:  1,
	}, zap.NewNop())

	scheduler := NewScheduler(
		config.SchedulerConfig{InsightsSpec: "not a cron spec"},
		insightsConfig(),
		f.service,
		optimizer,
		f.insights,
		f.datasets,
		zap.NewNop(),
	)
	assert.Error(t, scheduler.Start())
}

func TestSchedulerRefreshEntryGeneratesInsights(t *testing.T) {
	scheduler, f, insights := newSchedulerFixture(t)
	f.addReadyDataset(t)

	scheduler.refreshInsights()
	assert.Equal(t, 1, insights.replace)
}

func TestSchedulerRetentionEntryPrunes(t *testing.T) {
	scheduler, f, insights := newSchedulerFixture(t)
	dataset := f.addReadyDataset(t)

	_, err := f.service.GenerateInsights(context.Background(), dataset.ID, nil, 0)
	require.NoError(t, err)

	insights.mu.Lock()
	for _, in := range insights.byDS[dataset.ID] {
		in.CreatedAt = time.Now().AddDate(0, 0, -60)
	}
	insights.mu.Unlock()

	scheduler.runRetention()

	remaining, err := f.service.ListInsights(context.Background(), dataset.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestSchedulerRetentionEntryRemovesStaleErrorDatasets(t *testing.T) {
	scheduler, f, _ := newSchedulerFixture(t)

	stale := &models.Dataset{Name: "broken.csv", Status: models.DatasetStatusError}
	require.NoError(t, f.datasets.Create(context.Background(), stale))
	f.datasets.mu.Lock()
	f.datasets.datasets[stale.ID].UpdatedAt = time.Now().AddDate(0, 0, -60)
	f.datasets.mu.Unlock()

	fresh := f.addReadyDataset(t)

	scheduler.runRetention()

	_, err := f.datasets.GetByID(context.Background(), stale.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.datasets.GetByID(context.Background(), fresh.ID)
	assert.NoError(t, err)
}

func TestSchedulerOptimizerEntryRuns(t *testing.T) {
	scheduler, _, _ := newSchedulerFixture(t)
	// No feedback exists; the entry must still complete without error.
	scheduler.runOptimizer()
}
