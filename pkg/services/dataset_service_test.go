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
	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/tabular"
)

const salesCSV = `region,sales,order_date
north,100,2024-01-05
north,150,2024-02-05
south,80,2024-01-10
`

type datasetServiceFixture struct {
	service  DatasetService
	datasets *fakeDatasetRepo
	store    *tabular.Store
	jobs     *JobRunner
}

func newDatasetServiceFixture(t *testing.T) *datasetServiceFixture {
	t.Helper()
	datasets := newFakeDatasetRepo()
	store := tabular.NewStore()
	jobs := NewJobRunner(&config.JobsConfig{MaxConcurrent: 2}, zap.NewNop())
	t.Cleanup(jobs.Shutdown)

	profiler := NewProfiler(&config.ProfilerConfig{
		MaxRows:      100000,
		MaxColumns:   100,
		SampleValues: 5,
	}, zap.NewNop())

	service := NewDatasetService(datasets, newFakeInsightRepo(), profiler, store, jobs, zap.NewNop())
	return &datasetServiceFixture{service: service, datasets: datasets, store: store, jobs: jobs}
}

func waitForStatus(t *testing.T, f *datasetServiceFixture, id uuid.UUID, want models.DatasetStatus) *models.Dataset {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		dataset, err := f.datasets.GetByID(context.Background(), id)
		require.NoError(t, err)
		if dataset.Status == want {
			return dataset
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dataset %s never reached status %s", id, want)
	return nil
}

func TestCreateDatasetProfilesAsynchronously(t *testing.T) {
	f := newDatasetServiceFixture(t)

	dataset, err := f.service.CreateDataset(context.Background(), uuid.New(), "sales", []byte(salesCSV))
	require.NoError(t, err)
	assert.Equal(t, models.DatasetStatusUploaded, dataset.Status)

	ready := waitForStatus(t, f, dataset.ID, models.DatasetStatusReady)

	assert.Equal(t, 3, ready.RowCount)
	assert.Equal(t, 3, ready.ColumnCount)
	require.NotNil(t, ready.Schema)
	require.Len(t, ready.Schema.Columns, 3)
	assert.Equal(t, models.ColumnTypeNumeric, ready.Schema.Columns[1].Type)
	assert.Equal(t, models.ColumnTypeDatetime, ready.Schema.Columns[2].Type)

	table, ok := f.store.Snapshot(dataset.ID)
	require.True(t, ok, "a ready dataset must have a queryable table")
	assert.Equal(t, 3, table.NumRows())
}

func TestCreateDatasetWithBadCSVEndsInError(t *testing.T) {
	f := newDatasetServiceFixture(t)

	dataset, err := f.service.CreateDataset(context.Background(), uuid.New(), "broken", []byte("a,b\n\"unterminated"))
	require.NoError(t, err, "creation succeeds; profiling fails later")

	failed := waitForStatus(t, f, dataset.ID, models.DatasetStatusError)
	assert.NotEmpty(t, failed.ErrorMessage)

	_, ok := f.store.Snapshot(dataset.ID)
	assert.False(t, ok, "a failed dataset must not publish a table")
}

func TestCreateDatasetWithOnlyHeaderEndsInError(t *testing.T) {
	f := newDatasetServiceFixture(t)

	dataset, err := f.service.CreateDataset(context.Background(), uuid.New(), "empty", []byte("a,b,c\n"))
	require.NoError(t, err)

	failed := waitForStatus(t, f, dataset.ID, models.DatasetStatusError)
	assert.NotEmpty(t, failed.ErrorMessage)
}

func TestPreviewDatasetReturnsFirstRows(t *testing.T) {
	f := newDatasetServiceFixture(t)

	dataset, err := f.service.CreateDataset(context.Background(), uuid.New(), "sales", []byte(salesCSV))
	require.NoError(t, err)
	waitForStatus(t, f, dataset.ID, models.DatasetStatusReady)

	preview, err := f.service.PreviewDataset(context.Background(), dataset.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "sales", "order_date"}, preview.Columns)
	assert.Equal(t, 3, preview.RowCount)
	require.Len(t, preview.Rows, 2)
	assert.Equal(t, "north", preview.Rows[0]["region"])
	assert.Equal(t, 150.0, preview.Rows[1]["sales"])
}

func TestPreviewDatasetLimitBounds(t *testing.T) {
	f := newDatasetServiceFixture(t)

	dataset, err := f.service.CreateDataset(context.Background(), uuid.New(), "sales", []byte(salesCSV))
	require.NoError(t, err)
	waitForStatus(t, f, dataset.ID, models.DatasetStatusReady)

	preview, err := f.service.PreviewDataset(context.Background(), dataset.ID, 0)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 3, "default limit clamps to the table size")

	preview, err = f.service.PreviewDataset(context.Background(), dataset.ID, 100)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 3)
}

func TestPreviewDatasetRequiresReady(t *testing.T) {
	f := newDatasetServiceFixture(t)

	pending := &models.Dataset{Name: "pending.csv", Status: models.DatasetStatusProcessing}
	require.NoError(t, f.datasets.Create(context.Background(), pending))

	_, err := f.service.PreviewDataset(context.Background(), pending.ID, 5)
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotReady)

	_, err = f.service.PreviewDataset(context.Background(), uuid.New(), 5)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteDatasetRemovesTable(t *testing.T) {
	f := newDatasetServiceFixture(t)

	dataset, err := f.service.CreateDataset(context.Background(), uuid.New(), "sales", []byte(salesCSV))
	require.NoError(t, err)
	waitForStatus(t, f, dataset.ID, models.DatasetStatusReady)

	require.NoError(t, f.service.DeleteDataset(context.Background(), dataset.ID))

	_, err = f.service.GetDataset(context.Background(), dataset.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, ok := f.store.Snapshot(dataset.ID)
	assert.False(t, ok)
}

func TestDeleteMissingDataset(t *testing.T) {
	f := newDatasetServiceFixture(t)
	err := f.service.DeleteDataset(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListDatasetsByOwner(t *testing.T) {
	f := newDatasetServiceFixture(t)
	owner := uuid.New()

	_, err := f.service.CreateDataset(context.Background(), owner, "one", []byte(salesCSV))
	require.NoError(t, err)
	_, err = f.service.CreateDataset(context.Background(), owner, "two", []byte(salesCSV))
	require.NoError(t, err)
	_, err = f.service.CreateDataset(context.Background(), uuid.New(), "other", []byte(salesCSV))
	require.NoError(t, err)

	mine, err := f.service.ListDatasets(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
