package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/repositories"
)

// FeedbackOptimizer accumulates positively-rated translations into the
// exemplar set that steers the translator. The set is rebuilt on a schedule
// and published with an atomic swap: translations in flight keep reading the
// prior set and never observe a partially-built one.
type FeedbackOptimizer interface {
	ExemplarProvider

	// Optimize rebuilds and publishes the exemplar set. A call that finds a
	// prior run still active is skipped, not queued.
	Optimize(ctx context.Context) error

	// Restore loads the persisted exemplar set, typically at startup.
	Restore(ctx context.Context) error
}

type feedbackOptimizer struct {
	queries   repositories.QueryRepository
	datasets  repositories.DatasetRepository
	exemplars repositories.ExemplarRepository

	maxTrainSize int
	minExamples  int

	current   atomic.Pointer[models.ExemplarSet]
	watermark time.Time  // newest feedback consumed by the last successful run
	running   sync.Mutex // single-flight guard; also protects watermark

	logger *zap.Logger
}

// NewFeedbackOptimizer creates a FeedbackOptimizer with an empty initial
// exemplar set.
func NewFeedbackOptimizer(
	queries repositories.QueryRepository,
	datasets repositories.DatasetRepository,
	exemplars repositories.ExemplarRepository,
	cfg *config.OptimizerConfig,
	logger *zap.Logger,
) FeedbackOptimizer {
	return &feedbackOptimizer{
		queries:      queries,
		datasets:     datasets,
		exemplars:    exemplars,
		maxTrainSize: cfg.MaxTrainSize,
		minExamples:  cfg.MinExamples,
		logger:       logger.Named("optimizer"),
	}
}

var _ FeedbackOptimizer = (*feedbackOptimizer)(nil)

// Current returns the published exemplar set, or nil before the first
// publication. The returned set is immutable.
func (o *feedbackOptimizer) Current() *models.ExemplarSet {
	return o.current.Load()
}

// Restore loads the persisted exemplar set into memory.
func (o *feedbackOptimizer) Restore(ctx context.Context) error {
	set, err := o.exemplars.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore exemplar set: %w", err)
	}
	if set == nil {
		return nil
	}

	o.running.Lock()
	defer o.running.Unlock()
	o.current.Store(set)
	o.watermark = newestExample(set)
	o.logger.Info("restored exemplar set",
		zap.Int("examples", len(set.Examples)),
		zap.Time("built_at", set.BuiltAt))
	return nil
}

// Optimize collects thumbs-up queries recorded since the last successful run,
// prepends them to the exemplar set, and publishes the result atomically.
// Running twice with no new feedback leaves the set identical.
func (o *feedbackOptimizer) Optimize(ctx context.Context) error {
	if !o.running.TryLock() {
		o.logger.Info("optimization already in progress, skipping")
		return nil
	}
	defer o.running.Unlock()

	fresh, err := o.queries.ListPositiveSince(ctx, o.watermark, o.maxTrainSize)
	if err != nil {
		return &OptimizationError{Message: "could not collect feedback", Cause: err}
	}
	if len(fresh) == 0 {
		o.logger.Info("no new feedback since last run, exemplar set unchanged")
		return nil
	}

	newExamples, newest, err := o.buildExamples(ctx, fresh)
	if err != nil {
		return err
	}

	examples := newExamples
	if prev := o.current.Load(); prev != nil {
		examples = append(examples, prev.Examples...)
	}
	if len(examples) > o.maxTrainSize {
		examples = examples[:o.maxTrainSize]
	}

	total, err := o.queries.CountPositive(ctx)
	if err != nil {
		return &OptimizationError{Message: "could not count feedback", Cause: err}
	}
	if total < o.minExamples {
		o.logger.Info("not enough feedback to optimize yet",
			zap.Int("have", total),
			zap.Int("need", o.minExamples))
		return nil
	}

	set := &models.ExemplarSet{Examples: examples, BuiltAt: time.Now()}
	if err := o.exemplars.Save(ctx, set); err != nil {
		// The previous set stays in service when persistence fails.
		return &OptimizationError{Message: "could not persist exemplar set", Cause: err}
	}

	o.current.Store(set)
	o.watermark = newest

	o.logger.Info("published exemplar set",
		zap.Int("new_examples", len(newExamples)),
		zap.Int("total_examples", len(set.Examples)))
	return nil
}

// buildExamples converts thumbs-up queries into feedback examples, most
// recent first, resolving each query's dataset schema for context.
func (o *feedbackOptimizer) buildExamples(ctx context.Context, queries []*models.Query) ([]models.FeedbackExample, time.Time, error) {
	schemas := make(map[uuid.UUID]string)
	var newest time.Time

	examples := make([]models.FeedbackExample, 0, len(queries))
	for _, q := range queries {
		if q.GeneratedExpression == "" {
			continue
		}
		if q.UpdatedAt.After(newest) {
			newest = q.UpdatedAt
		}

		info, ok := schemas[q.DatasetID]
		if !ok {
			dataset, err := o.datasets.GetByID(ctx, q.DatasetID)
			if err != nil {
				// Dataset may have been deleted; the expression alone still
				// has exemplar value.
				info = ""
			} else {
				info = schemaInfoLine(dataset.Schema)
			}
			schemas[q.DatasetID] = info
		}

		examples = append(examples, models.FeedbackExample{
			SchemaInfo: info,
			NLText:     q.NaturalLanguageText,
			Expression: q.GeneratedExpression,
			RecordedAt: q.UpdatedAt,
		})
	}
	return examples, newest, nil
}

// schemaInfoLine renders a schema as a single compact line for exemplars.
func schemaInfoLine(schema *models.SchemaDescriptor) string {
	if schema == nil {
		return ""
	}
	parts := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		parts = append(parts, fmt.Sprintf("%s (%s)", col.Name, col.Type))
	}
	return strings.Join(parts, ", ")
}

func newestExample(set *models.ExemplarSet) time.Time {
	var newest time.Time
	for _, ex := range set.Examples {
		if ex.RecordedAt.After(newest) {
			newest = ex.RecordedAt
		}
	}
	return newest
}
