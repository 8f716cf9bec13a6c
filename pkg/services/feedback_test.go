package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/models"
)

func optimizerFixture(t *testing.T) (FeedbackOptimizer, *fakeQueryRepo, *fakeDatasetRepo, *fakeExemplarRepo) {
	t.Helper()
	queries := newFakeQueryRepo()
	datasets := newFakeDatasetRepo()
	exemplars := newFakeExemplarRepo()
	optimizer := NewFeedbackOptimizer(queries, datasets, exemplars, &config.OptimizerConfig{
		MaxTrainSize: 100,
		MinExamples:  2,
	}, zap.NewNop())
	return optimizer, queries, datasets, exemplars
}

func addPositiveQuery(t *testing.T, queries *fakeQueryRepo, datasetID uuid.UUID, nlText, expression string) *models.Query {
	t.Helper()
	query := &models.Query{
		DatasetID:           datasetID,
		OwnerID:             uuid.New(),
		NaturalLanguageText: nlText,
		GeneratedExpression: expression,
		Status:              models.QueryStatusSuccess,
		UserFeedback:        models.FeedbackThumbsUp,
	}
	require.NoError(t, queries.Create(context.Background(), query))
	return query
}

func TestOptimizeBuildsExemplarSetFromPositiveFeedback(t *testing.T) {
	optimizer, queries, datasets, _ := optimizerFixture(t)
	ctx := context.Background()

	dataset := &models.Dataset{
		OwnerID: uuid.New(),
		Name:    "sales",
		Status:  models.DatasetStatusReady,
		Schema: &models.SchemaDescriptor{Columns: []models.ColumnDescriptor{
			{Name: "region", Type: models.ColumnTypeCategorical},
			{Name: "sales", Type: models.ColumnTypeNumeric},
		}},
	}
	require.NoError(t, datasets.Create(ctx, dataset))

	addPositiveQuery(t, queries, dataset.ID, "sales by region", "SELECT region, sum(sales) GROUP BY region")
	addPositiveQuery(t, queries, dataset.ID, "total sales", "SELECT sum(sales)")

	require.Nil(t, optimizer.Current())
	require.NoError(t, optimizer.Optimize(ctx))

	set := optimizer.Current()
	require.NotNil(t, set)
	assert.Len(t, set.Examples, 2)
	assert.Contains(t, set.Examples[0].SchemaInfo, "region (categorical)")
}

func TestOptimizeTwiceWithNoNewFeedbackIsIdempotent(t *testing.T) {
	optimizer, queries, datasets, _ := optimizerFixture(t)
	ctx := context.Background()

	dataset := &models.Dataset{OwnerID: uuid.New(), Status: models.DatasetStatusReady}
	require.NoError(t, datasets.Create(ctx, dataset))
	addPositiveQuery(t, queries, dataset.ID, "q1", "SELECT a")
	addPositiveQuery(t, queries, dataset.ID, "q2", "SELECT b")

	require.NoError(t, optimizer.Optimize(ctx))
	first := optimizer.Current()
	require.NotNil(t, first)

	require.NoError(t, optimizer.Optimize(ctx))
	second := optimizer.Current()

	assert.Same(t, first, second, "a run with no new feedback must not publish a new set")
}

func TestOptimizeBelowMinimumDoesNotPublish(t *testing.T) {
	queries := newFakeQueryRepo()
	datasets := newFakeDatasetRepo()
	exemplars := newFakeExemplarRepo()
	optimizer := NewFeedbackOptimizer(queries, datasets, exemplars, &config.OptimizerConfig{
		MaxTrainSize: 100,
		MinExamples:  10,
	}, zap.NewNop())
	ctx := context.Background()

	dataset := &models.Dataset{OwnerID: uuid.New(), Status: models.DatasetStatusReady}
	require.NoError(t, datasets.Create(ctx, dataset))
	addPositiveQuery(t, queries, dataset.ID, "q1", "SELECT a")

	require.NoError(t, optimizer.Optimize(ctx))
	assert.Nil(t, optimizer.Current())
	assert.Nil(t, exemplars.set)
}

func TestOptimizeBoundsTrainingSize(t *testing.T) {
	queries := newFakeQueryRepo()
	datasets := newFakeDatasetRepo()
	exemplars := newFakeExemplarRepo()
	optimizer := NewFeedbackOptimizer(queries, datasets, exemplars, &config.OptimizerConfig{
		MaxTrainSize: 5,
		MinExamples:  1,
	}, zap.NewNop())
	ctx := context.Background()

	dataset := &models.Dataset{OwnerID: uuid.New(), Status: models.DatasetStatusReady}
	require.NoError(t, datasets.Create(ctx, dataset))
	for i := 0; i < 12; i++ {
		addPositiveQuery(t, queries, dataset.ID, fmt.Sprintf("q%d", i), fmt.Sprintf("SELECT c%d", i))
	}

	require.NoError(t, optimizer.Optimize(ctx))
	set := optimizer.Current()
	require.NotNil(t, set)
	assert.LessOrEqual(t, len(set.Examples), 5)
}

func TestOptimizeSkipsQueriesWithoutExpressions(t *testing.T) {
	optimizer, queries, datasets, _ := optimizerFixture(t)
	ctx := context.Background()

	dataset := &models.Dataset{OwnerID: uuid.New(), Status: models.DatasetStatusReady}
	require.NoError(t, datasets.Create(ctx, dataset))
	addPositiveQuery(t, queries, dataset.ID, "good", "SELECT a")
	addPositiveQuery(t, queries, dataset.ID, "empty", "")
	addPositiveQuery(t, queries, dataset.ID, "another", "SELECT b")

	require.NoError(t, optimizer.Optimize(ctx))
	set := optimizer.Current()
	require.NotNil(t, set)
	assert.Len(t, set.Examples, 2)
}

func TestOptimizeKeepsPreviousSetOnPersistFailure(t *testing.T) {
	optimizer, queries, datasets, exemplars := optimizerFixture(t)
	ctx := context.Background()

	dataset := &models.Dataset{OwnerID: uuid.New(), Status: models.DatasetStatusReady}
	require.NoError(t, datasets.Create(ctx, dataset))
	addPositiveQuery(t, queries, dataset.ID, "q1", "SELECT a")
	addPositiveQuery(t, queries, dataset.ID, "q2", "SELECT b")

	require.NoError(t, optimizer.Optimize(ctx))
	published := optimizer.Current()
	require.NotNil(t, published)

	exemplars.saveErr = errors.New("disk full")
	addPositiveQuery(t, queries, dataset.ID, "q3", "SELECT c")

	err := optimizer.Optimize(ctx)
	require.Error(t, err)
	var optErr *OptimizationError
	assert.True(t, errors.As(err, &optErr))
	assert.Same(t, published, optimizer.Current(), "failed runs must not replace the live set")
}

func TestOptimizeConcurrentTriggerIsSkipped(t *testing.T) {
	queries := newFakeQueryRepo()
	datasets := newFakeDatasetRepo()
	exemplars := newFakeExemplarRepo()

	blocker := &blockingQueryRepo{
		fakeQueryRepo: queries,
		release:       make(chan struct{}),
		entered:       make(chan struct{}),
	}
	optimizer := NewFeedbackOptimizer(blocker, datasets, exemplars, &config.OptimizerConfig{
		MaxTrainSize: 100,
		MinExamples:  1,
	}, zap.NewNop())
	ctx := context.Background()

	dataset := &models.Dataset{OwnerID: uuid.New(), Status: models.DatasetStatusReady}
	require.NoError(t, datasets.Create(ctx, dataset))
	addPositiveQuery(t, queries, dataset.ID, "q1", "SELECT a")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = optimizer.Optimize(ctx)
	}()

	<-blocker.entered

	// The first run is still inside ListPositiveSince; this trigger must be
	// skipped immediately rather than queued.
	done := make(chan error, 1)
	go func() { done <- optimizer.Optimize(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent trigger blocked instead of skipping")
	}

	close(blocker.release)
	wg.Wait()

	set := optimizer.Current()
	require.NotNil(t, set)
	assert.Len(t, set.Examples, 1, "only the first run may publish")
}

// blockingQueryRepo stalls ListPositiveSince until released, signalling entry
// once.
type blockingQueryRepo struct {
	*fakeQueryRepo
	release   chan struct{}
	entered   chan struct{}
	enterOnce sync.Once
}

func (b *blockingQueryRepo) ListPositiveSince(ctx context.Context, since time.Time, limit int) ([]*models.Query, error) {
	b.enterOnce.Do(func() { close(b.entered) })
	<-b.release
	return b.fakeQueryRepo.ListPositiveSince(ctx, since, limit)
}

func TestRestoreLoadsPersistedSet(t *testing.T) {
	optimizer, _, _, exemplars := optimizerFixture(t)
	ctx := context.Background()

	persisted := &models.ExemplarSet{
		Examples: []models.FeedbackExample{
			{NLText: "q", Expression: "SELECT a", RecordedAt: time.Now()},
		},
		BuiltAt: time.Now(),
	}
	exemplars.set = persisted

	require.NoError(t, optimizer.Restore(ctx))
	set := optimizer.Current()
	require.NotNil(t, set)
	assert.Len(t, set.Examples, 1)

	// Nothing new since the persisted watermark, so the set stays put.
	require.NoError(t, optimizer.Optimize(ctx))
	assert.Same(t, set, optimizer.Current())
}

func TestRestoreWithNothingPersistedIsANoOp(t *testing.T) {
	optimizer, _, _, _ := optimizerFixture(t)
	require.NoError(t, optimizer.Restore(context.Background()))
	assert.Nil(t, optimizer.Current())
}
