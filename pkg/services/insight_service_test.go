package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/apperrors"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/tabular"
)

type insightServiceFixture struct {
	service  InsightService
	datasets *fakeDatasetRepo
	insights *fakeInsightRepo
	store    *tabular.Store
}

func newInsightServiceFixture(t *testing.T) *insightServiceFixture {
	t.Helper()
	datasets := newFakeDatasetRepo()
	insights := newFakeInsightRepo()
	store := tabular.NewStore()
	synthesizer := newSynthesizer(insightsConfig())

	service := NewInsightService(datasets, insights, synthesizer, store, zap.NewNop())
	return &insightServiceFixture{service: service, datasets: datasets, insights: insights, store: store}
}

func (f *insightServiceFixture) addReadyDataset(t *testing.T) *models.Dataset {
	t.Helper()
	dataset, table := numericDataset(t, []string{"x", "y"}, [][]string{
		{"1", "2"}, {"2", "4"}, {"3", "6"}, {"4", "8"}, {"5", "10"},
	})
	require.NoError(t, f.datasets.Create(context.Background(), dataset))
	require.NoError(t, f.datasets.UpdateProfile(context.Background(), dataset))
	f.store.Replace(dataset.ID, table)
	return dataset
}

func TestGenerateInsightsPersistsTheSet(t *testing.T) {
	f := newInsightServiceFixture(t)
	dataset := f.addReadyDataset(t)

	insights, err := f.service.GenerateInsights(context.Background(), dataset.ID, nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, insights)

	stored, err := f.service.ListInsights(context.Background(), dataset.ID)
	require.NoError(t, err)
	assert.Len(t, stored, len(insights))
}

func TestGenerateInsightsReplacesThePreviousSet(t *testing.T) {
	f := newInsightServiceFixture(t)
	dataset := f.addReadyDataset(t)
	ctx := context.Background()

	_, err := f.service.GenerateInsights(ctx, dataset.ID, nil, 0)
	require.NoError(t, err)
	first, err := f.service.ListInsights(ctx, dataset.ID)
	require.NoError(t, err)

	_, err = f.service.GenerateInsights(ctx, dataset.ID, nil, 0)
	require.NoError(t, err)
	second, err := f.service.ListInsights(ctx, dataset.ID)
	require.NoError(t, err)

	assert.Len(t, second, len(first))
	assert.Equal(t, 2, f.insights.replace, "each run swaps the whole set")
}

func TestGenerateInsightsRequiresAReadyDataset(t *testing.T) {
	f := newInsightServiceFixture(t)
	dataset := &models.Dataset{OwnerID: uuid.New(), Status: models.DatasetStatusProcessing}
	require.NoError(t, f.datasets.Create(context.Background(), dataset))

	_, err := f.service.GenerateInsights(context.Background(), dataset.ID, nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotReady)
}

func TestGenerateInsightsForMissingDataset(t *testing.T) {
	f := newInsightServiceFixture(t)
	_, err := f.service.GenerateInsights(context.Background(), uuid.New(), nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGenerateInsightsWithoutLoadedTable(t *testing.T) {
	f := newInsightServiceFixture(t)
	dataset := f.addReadyDataset(t)
	f.store.Remove(dataset.ID)

	_, err := f.service.GenerateInsights(context.Background(), dataset.ID, nil, 0)
	assert.Error(t, err)
}

func TestRefreshStaleSkipsFreshDatasets(t *testing.T) {
	f := newInsightServiceFixture(t)
	dataset := f.addReadyDataset(t)
	ctx := context.Background()

	_, err := f.service.GenerateInsights(ctx, dataset.ID, nil, 0)
	require.NoError(t, err)
	require.Equal(t, 1, f.insights.replace)

	require.NoError(t, f.service.RefreshStale(ctx, time.Hour))
	assert.Equal(t, 1, f.insights.replace, "fresh insights are not regenerated")
}

func TestRefreshStaleRegeneratesOldInsights(t *testing.T) {
	f := newInsightServiceFixture(t)
	dataset := f.addReadyDataset(t)
	ctx := context.Background()

	_, err := f.service.GenerateInsights(ctx, dataset.ID, nil, 0)
	require.NoError(t, err)

	// Age the stored insights past the freshness window.
	f.insights.mu.Lock()
	for _, in := range f.insights.byDS[dataset.ID] {
		in.CreatedAt = time.Now().Add(-48 * time.Hour)
	}
	f.insights.mu.Unlock()

	require.NoError(t, f.service.RefreshStale(ctx, 24*time.Hour))
	assert.Equal(t, 2, f.insights.replace)
}

func TestRefreshStaleCoversDatasetsWithNoInsights(t *testing.T) {
	f := newInsightServiceFixture(t)
	f.addReadyDataset(t)

	require.NoError(t, f.service.RefreshStale(context.Background(), 24*time.Hour))
	assert.Equal(t, 1, f.insights.replace)
}
