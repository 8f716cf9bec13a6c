package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insightpilot/insight-engine/pkg/apperrors"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/repositories"
)

// In-memory repository fakes used by the service unit tests. They implement
// just enough semantics for the pipeline: keyed storage, status filters, and
// feedback queries ordered newest first.

type fakeDatasetRepo struct {
	mu       sync.Mutex
	datasets map[uuid.UUID]*models.Dataset
}

func newFakeDatasetRepo() *fakeDatasetRepo {
	return &fakeDatasetRepo{datasets: make(map[uuid.UUID]*models.Dataset)}
}

var _ repositories.DatasetRepository = (*fakeDatasetRepo)(nil)

func (f *fakeDatasetRepo) Create(_ context.Context, dataset *models.Dataset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dataset.ID == uuid.Nil {
		dataset.ID = uuid.New()
	}
	dataset.CreatedAt = time.Now()
	dataset.UpdatedAt = dataset.CreatedAt
	clone := *dataset
	f.datasets[dataset.ID] = &clone
	return nil
}

func (f *fakeDatasetRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dataset, ok := f.datasets[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *dataset
	return &clone, nil
}

func (f *fakeDatasetRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Dataset
	for _, d := range f.datasets {
		if d.OwnerID == ownerID {
			clone := *d
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeDatasetRepo) ListByStatus(_ context.Context, status models.DatasetStatus) ([]*models.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Dataset
	for _, d := range f.datasets {
		if d.Status == status {
			clone := *d
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeDatasetRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.DatasetStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dataset, ok := f.datasets[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	dataset.Status = status
	dataset.ErrorMessage = errorMessage
	dataset.UpdatedAt = time.Now()
	return nil
}

func (f *fakeDatasetRepo) UpdateProfile(_ context.Context, dataset *models.Dataset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.datasets[dataset.ID]; !ok {
		return apperrors.ErrNotFound
	}
	clone := *dataset
	clone.UpdatedAt = time.Now()
	f.datasets[dataset.ID] = &clone
	return nil
}

func (f *fakeDatasetRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.datasets[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(f.datasets, id)
	return nil
}

func (f *fakeDatasetRepo) DeleteErrorBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for id, d := range f.datasets {
		if d.Status == models.DatasetStatusError && d.UpdatedAt.Before(cutoff) {
			delete(f.datasets, id)
			removed++
		}
	}
	return removed, nil
}

type fakeQueryRepo struct {
	mu      sync.Mutex
	queries map[uuid.UUID]*models.Query
}

func newFakeQueryRepo() *fakeQueryRepo {
	return &fakeQueryRepo{queries: make(map[uuid.UUID]*models.Query)}
}

var _ repositories.QueryRepository = (*fakeQueryRepo)(nil)

func (f *fakeQueryRepo) Create(_ context.Context, query *models.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if query.ID == uuid.Nil {
		query.ID = uuid.New()
	}
	query.CreatedAt = time.Now()
	query.UpdatedAt = query.CreatedAt
	clone := *query
	f.queries[query.ID] = &clone
	return nil
}

func (f *fakeQueryRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	query, ok := f.queries[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *query
	return &clone, nil
}

func (f *fakeQueryRepo) ListByDataset(_ context.Context, datasetID uuid.UUID) ([]*models.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Query
	for _, q := range f.queries {
		if q.DatasetID == datasetID {
			clone := *q
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeQueryRepo) UpdateResult(_ context.Context, query *models.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queries[query.ID]; !ok {
		return apperrors.ErrNotFound
	}
	clone := *query
	clone.UpdatedAt = time.Now()
	f.queries[query.ID] = &clone
	query.UpdatedAt = clone.UpdatedAt
	return nil
}

func (f *fakeQueryRepo) SetFeedback(_ context.Context, id uuid.UUID, feedback models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	query, ok := f.queries[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	query.UserFeedback = feedback
	query.UpdatedAt = time.Now()
	return nil
}

func (f *fakeQueryRepo) ListPositiveSince(_ context.Context, since time.Time, limit int) ([]*models.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Query
	for _, q := range f.queries {
		if q.UserFeedback == models.FeedbackThumbsUp &&
			q.Status == models.QueryStatusSuccess &&
			q.UpdatedAt.After(since) {
			clone := *q
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeQueryRepo) CountPositive(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if q.UserFeedback == models.FeedbackThumbsUp && q.Status == models.QueryStatusSuccess {
			n++
		}
	}
	return n, nil
}

func (f *fakeQueryRepo) DeleteByDataset(_ context.Context, datasetID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, q := range f.queries {
		if q.DatasetID == datasetID {
			delete(f.queries, id)
		}
	}
	return nil
}

type fakeExemplarRepo struct {
	mu      sync.Mutex
	set     *models.ExemplarSet
	saveErr error
	saves   int
}

func newFakeExemplarRepo() *fakeExemplarRepo { return &fakeExemplarRepo{} }

var _ repositories.ExemplarRepository = (*fakeExemplarRepo)(nil)

func (f *fakeExemplarRepo) Save(_ context.Context, set *models.ExemplarSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.set = set
	return nil
}

func (f *fakeExemplarRepo) Load(_ context.Context) (*models.ExemplarSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set, nil
}

type fakeInsightRepo struct {
	mu      sync.Mutex
	byDS    map[uuid.UUID][]*models.Insight
	replace int
}

func newFakeInsightRepo() *fakeInsightRepo {
	return &fakeInsightRepo{byDS: make(map[uuid.UUID][]*models.Insight)}
}

var _ repositories.InsightRepository = (*fakeInsightRepo)(nil)

func (f *fakeInsightRepo) ReplaceForDataset(_ context.Context, datasetID uuid.UUID, insights []*models.Insight) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replace++
	now := time.Now()
	for _, in := range insights {
		if in.CreatedAt.IsZero() {
			in.CreatedAt = now
		}
	}
	f.byDS[datasetID] = insights
	return nil
}

func (f *fakeInsightRepo) ListByDataset(_ context.Context, datasetID uuid.UUID) ([]*models.Insight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byDS[datasetID], nil
}

func (f *fakeInsightRepo) LatestCreatedAt(_ context.Context, datasetID uuid.UUID) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest time.Time
	for _, in := range f.byDS[datasetID] {
		if in.CreatedAt.After(latest) {
			latest = in.CreatedAt
		}
	}
	return latest, nil
}

func (f *fakeInsightRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, insights := range f.byDS {
		var kept []*models.Insight
		for _, in := range insights {
			if in.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, in)
		}
		f.byDS[id] = kept
	}
	return deleted, nil
}

func (f *fakeInsightRepo) DeleteByDataset(_ context.Context, datasetID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byDS, datasetID)
	return nil
}
