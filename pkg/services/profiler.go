package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/stats"
	"github.com/insightpilot/insight-engine/pkg/tabular"
)

// Categorical classification: a string column is categorical when its
// distinct count stays under both an absolute cap and a fraction of the
// non-null count; otherwise it is free text.
const (
	maxCategoricalDistinct = 50
	maxCategoricalRatio    = 0.5
)

// Profiler infers a schema descriptor from an in-memory table.
type Profiler interface {
	Profile(table *tabular.Table) (*models.SchemaDescriptor, error)
}

type profiler struct {
	maxRows      int
	maxColumns   int
	sampleValues int
	logger       *zap.Logger
}

// NewProfiler creates a Profiler bounded by the profiler config.
func NewProfiler(cfg *config.ProfilerConfig, logger *zap.Logger) Profiler {
	return &profiler{
		maxRows:      cfg.MaxRows,
		maxColumns:   cfg.MaxColumns,
		sampleValues: cfg.SampleValues,
		logger:       logger.Named("profiler"),
	}
}

var _ Profiler = (*profiler)(nil)

// Profile inspects every column and produces the descriptor that grounds
// translation and insight synthesis. Each profiling run builds a fresh
// descriptor; nothing is merged with previous runs.
func (p *profiler) Profile(table *tabular.Table) (*models.SchemaDescriptor, error) {
	if table.NumRows() == 0 || table.NumCols() == 0 {
		return nil, fmt.Errorf("table has no data")
	}
	if table.NumRows() > p.maxRows {
		return nil, fmt.Errorf("table has %d rows, limit is %d", table.NumRows(), p.maxRows)
	}
	if table.NumCols() > p.maxColumns {
		return nil, fmt.Errorf("table has %d columns, limit is %d", table.NumCols(), p.maxColumns)
	}

	descriptor := &models.SchemaDescriptor{
		Columns: make([]models.ColumnDescriptor, 0, table.NumCols()),
	}
	for c, name := range table.Columns() {
		descriptor.Columns = append(descriptor.Columns, p.profileColumn(table, c, name))
	}

	p.logger.Info("profiled table",
		zap.Int("rows", table.NumRows()),
		zap.Int("columns", table.NumCols()))

	return descriptor, nil
}

func (p *profiler) profileColumn(table *tabular.Table, c int, name string) models.ColumnDescriptor {
	distinct := make(map[string]struct{})
	samples := make([]string, 0, p.sampleValues)
	nullCount := 0
	nonNull := 0
	allNumeric := true
	allTime := true

	for r := 0; r < table.NumRows(); r++ {
		v := table.At(r, c)
		if v.Kind == tabular.KindNull {
			nullCount++
			continue
		}
		nonNull++
		if v.Kind != tabular.KindNumber {
			allNumeric = false
		}
		if v.Kind != tabular.KindTime {
			allTime = false
		}

		s := v.String()
		if _, seen := distinct[s]; !seen {
			distinct[s] = struct{}{}
			if len(samples) < p.sampleValues {
				samples = append(samples, s)
			}
		}
	}

	desc := models.ColumnDescriptor{
		Name:          name,
		SampleValues:  samples,
		DistinctCount: len(distinct),
		NullCount:     nullCount,
	}

	switch {
	case nonNull > 0 && allNumeric:
		desc.Type = models.ColumnTypeNumeric
		desc.NumericStats = numericStats(table.NumericColumn(name))
	case nonNull > 0 && allTime:
		desc.Type = models.ColumnTypeDatetime
	case isCategorical(len(distinct), nonNull):
		desc.Type = models.ColumnTypeCategorical
	default:
		desc.Type = models.ColumnTypeText
	}

	return desc
}

func isCategorical(distinct, nonNull int) bool {
	if nonNull == 0 {
		return false
	}
	return distinct <= maxCategoricalDistinct &&
		float64(distinct)/float64(nonNull) <= maxCategoricalRatio
}

func numericStats(values []float64) *models.NumericStats {
	if len(values) == 0 {
		return nil
	}
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return &models.NumericStats{
		Min:    min,
		Max:    max,
		Mean:   stats.Mean(values),
		StdDev: stats.StdDev(values),
	}
}
