package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/llm"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/stats"
	"github.com/insightpilot/insight-engine/pkg/tabular"
)

// InsightSynthesizer runs statistical detectors over a dataset and narrates
// the strongest findings.
type InsightSynthesizer interface {
	Generate(ctx context.Context, dataset *models.Dataset, table *tabular.Table, queryID *uuid.UUID, maxInsights int) ([]*models.Insight, error)
}

type insightSynthesizer struct {
	client      llm.LLMClient
	pool        *llm.WorkerPool
	cfg         config.InsightsConfig
	temperature float64
	logger      *zap.Logger
}

// NewInsightSynthesizer creates an InsightSynthesizer. client may be nil, in
// which case deterministic narration is used for every insight.
func NewInsightSynthesizer(client llm.LLMClient, pool *llm.WorkerPool, cfg config.InsightsConfig, temperature float64, logger *zap.Logger) InsightSynthesizer {
	return &insightSynthesizer{
		client:      client,
		pool:        pool,
		cfg:         cfg,
		temperature: temperature,
		logger:      logger.Named("insights"),
	}
}

var _ InsightSynthesizer = (*insightSynthesizer)(nil)

// candidate is a detector finding before narration.
type candidate struct {
	Type       models.InsightType
	Title      string
	Fallback   string // deterministic description used when narration fails
	Confidence float64
	Supporting map[string]any
}

// Generate runs every detector, ranks the candidates, and narrates the top
// maxInsights. A failing detector is skipped; it never aborts the batch.
func (s *insightSynthesizer) Generate(
	ctx context.Context,
	dataset *models.Dataset,
	table *tabular.Table,
	queryID *uuid.UUID,
	maxInsights int,
) ([]*models.Insight, error) {
	if maxInsights <= 0 {
		maxInsights = s.cfg.MaxInsights
	}

	var candidates []candidate
	candidates = append(candidates, s.detectTrends(dataset.Schema, table)...)
	candidates = append(candidates, s.detectCorrelations(dataset.Schema, table)...)
	candidates = append(candidates, s.detectAnomalies(dataset.Schema, table)...)
	candidates = append(candidates, s.detectDistributions(dataset.Schema, table)...)

	if len(candidates) == 0 {
		return nil, nil
	}

	// Confidence descending; equal confidence breaks ties by type priority.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Type.Priority() < candidates[j].Type.Priority()
	})
	if len(candidates) > maxInsights {
		candidates = candidates[:maxInsights]
	}

	descriptions := s.narrate(ctx, candidates)

	insights := make([]*models.Insight, 0, len(candidates))
	for i, c := range candidates {
		insights = append(insights, &models.Insight{
			ID:             uuid.New(),
			DatasetID:      dataset.ID,
			QueryID:        queryID,
			InsightType:    c.Type,
			Title:          c.Title,
			Description:    descriptions[i],
			Confidence:     stats.Clamp01(c.Confidence),
			SupportingData: c.Supporting,
		})
	}
	return insights, nil
}

// ----------------------------------------------------------------------------
// Detectors
// ----------------------------------------------------------------------------

func (s *insightSynthesizer) detectCorrelations(schema *models.SchemaDescriptor, table *tabular.Table) []candidate {
	numeric := schema.NumericColumns()
	if len(numeric) < 2 {
		return nil
	}

	var out []candidate
	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			xs, ys := pairedValues(table, numeric[i].Name, numeric[j].Name)
			if len(xs) < s.cfg.MinSamples {
				continue
			}
			r, err := stats.Pearson(xs, ys)
			if err != nil {
				continue
			}
			if math.Abs(r) < s.cfg.CorrelationThreshold {
				continue
			}

			direction := "positively"
			if r < 0 {
				direction = "negatively"
			}
			out = append(out, candidate{
				Type:  models.InsightTypeCorrelation,
				Title: fmt.Sprintf("%s and %s are %s correlated", numeric[i].Name, numeric[j].Name, direction),
				Fallback: fmt.Sprintf("%s and %s move together with a Pearson correlation of %.2f across %d rows.",
					numeric[i].Name, numeric[j].Name, r, len(xs)),
				Confidence: stats.Clamp01(math.Abs(r)),
				Supporting: map[string]any{
					"column_a":    numeric[i].Name,
					"column_b":    numeric[j].Name,
					"correlation": r,
					"samples":     len(xs),
				},
			})
		}
	}
	return out
}

func (s *insightSynthesizer) detectAnomalies(schema *models.SchemaDescriptor, table *tabular.Table) []candidate {
	var out []candidate
	for _, col := range schema.NumericColumns() {
		values := table.NumericColumn(col.Name)
		if len(values) < s.cfg.MinSamples {
			continue
		}
		lower, upper, err := stats.IQRBounds(values)
		if err != nil {
			continue
		}
		iqr := (upper - lower) / 3 // bounds span Q1-1.5*IQR to Q3+1.5*IQR
		if iqr <= 0 {
			continue
		}

		var outliers []float64
		maxDistance := 0.0
		for _, v := range values {
			if v < lower || v > upper {
				outliers = append(outliers, v)
				d := lower - v
				if v > upper {
					d = v - upper
				}
				if d > maxDistance {
					maxDistance = d
				}
			}
		}
		if len(outliers) == 0 {
			continue
		}

		out = append(out, candidate{
			Type:  models.InsightTypeAnomaly,
			Title: fmt.Sprintf("%s contains %d outlier value(s)", col.Name, len(outliers)),
			Fallback: fmt.Sprintf("%d of %d values in %s fall outside the expected range [%.2f, %.2f].",
				len(outliers), len(values), col.Name, lower, upper),
			Confidence: stats.Clamp01(maxDistance / (2 * iqr)),
			Supporting: map[string]any{
				"column":        col.Name,
				"outlier_count": len(outliers),
				"lower_bound":   lower,
				"upper_bound":   upper,
				"outliers":      capFloats(outliers, 10),
			},
		})
	}
	return out
}

func (s *insightSynthesizer) detectTrends(schema *models.SchemaDescriptor, table *tabular.Table) []candidate {
	timeCol := firstDatetimeColumn(schema)

	var out []candidate
	for _, col := range schema.NumericColumns() {
		xs, ys := trendSeries(table, timeCol, col.Name)
		if len(ys) < s.cfg.MinSamples {
			continue
		}
		reg, err := stats.Linregress(xs, ys)
		if err != nil {
			continue
		}
		r2 := reg.R * reg.R
		if r2 < s.cfg.TrendR2Threshold || reg.Slope == 0 {
			continue
		}

		direction := "increasing"
		if reg.Slope < 0 {
			direction = "decreasing"
		}
		basis := "row order"
		if timeCol != "" {
			basis = timeCol
		}
		out = append(out, candidate{
			Type:  models.InsightTypeTrend,
			Title: fmt.Sprintf("%s shows an %s trend", col.Name, direction),
			Fallback: fmt.Sprintf("%s is %s over %s (slope %.4f, R² %.2f).",
				col.Name, direction, basis, reg.Slope, r2),
			Confidence: stats.Clamp01(r2),
			Supporting: map[string]any{
				"column":    col.Name,
				"direction": direction,
				"slope":     reg.Slope,
				"r_squared": r2,
				"basis":     basis,
			},
		})
	}
	return out
}

// distributionConfidence is the flat confidence for descriptive summaries;
// they are always worth narrating but never outrank a real signal.
const distributionConfidence = 0.5

func (s *insightSynthesizer) detectDistributions(schema *models.SchemaDescriptor, table *tabular.Table) []candidate {
	var out []candidate
	for _, col := range schema.NumericColumns() {
		values := table.NumericColumn(col.Name)
		if len(values) < s.cfg.MinSamples {
			continue
		}
		mean := stats.Mean(values)
		sd := stats.StdDev(values)
		skew := stats.Skewness(values)

		shape := "roughly symmetric"
		if skew > 0.5 {
			shape = "right-skewed"
		} else if skew < -0.5 {
			shape = "left-skewed"
		}

		out = append(out, candidate{
			Type:  models.InsightTypeDistribution,
			Title: fmt.Sprintf("Distribution of %s", col.Name),
			Fallback: fmt.Sprintf("%s averages %.2f with standard deviation %.2f and is %s.",
				col.Name, mean, sd, shape),
			Confidence: distributionConfidence,
			Supporting: map[string]any{
				"column":   col.Name,
				"mean":     mean,
				"std_dev":  sd,
				"skewness": skew,
				"shape":    shape,
			},
		})
	}
	return out
}

// ----------------------------------------------------------------------------
// Narration
// ----------------------------------------------------------------------------

const narrationSystemPrompt = `You write one-sentence plain-language descriptions of statistical findings for a business user.
Respond with a single JSON object: {"description": "..."}. No jargon, no markdown.`

type narrationResponse struct {
	Description string `json:"description"`
}

// narrate produces a description per candidate, in candidate order. Model
// failures fall back to the deterministic description.
func (s *insightSynthesizer) narrate(ctx context.Context, candidates []candidate) []string {
	descriptions := make([]string, len(candidates))
	for i, c := range candidates {
		descriptions[i] = c.Fallback
	}
	if s.client == nil || s.pool == nil {
		return descriptions
	}

	items := make([]llm.WorkItem[string], len(candidates))
	for i, c := range candidates {
		i, c := i, c
		items[i] = llm.WorkItem[string]{
			ID: fmt.Sprintf("narrate-%d", i),
			Execute: func(ctx context.Context) (string, error) {
				prompt := fmt.Sprintf("Finding: %s\nDetails: %s\nSupporting data: %v",
					c.Title, c.Fallback, c.Supporting)
				response, err := s.client.GenerateResponse(ctx, prompt, narrationSystemPrompt, s.temperature)
				if err != nil {
					return "", err
				}
				parsed, err := llm.ParseJSONResponse[narrationResponse](response)
				if err != nil {
					return "", err
				}
				if strings.TrimSpace(parsed.Description) == "" {
					return "", fmt.Errorf("empty description")
				}
				return strings.TrimSpace(parsed.Description), nil
			},
		}
	}

	results := llm.Process(ctx, s.pool, items, nil)
	for _, res := range results {
		if res.Err != nil {
			s.logger.Debug("narration fell back to deterministic text",
				zap.String("item", res.ID), zap.Error(res.Err))
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(res.ID, "narrate-%d", &idx); err == nil && idx < len(descriptions) {
			descriptions[idx] = res.Result
		}
	}
	return descriptions
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

// pairedValues returns rows where both columns are numeric and non-null.
func pairedValues(table *tabular.Table, colA, colB string) (xs, ys []float64) {
	a, okA := table.ColumnIndex(colA)
	b, okB := table.ColumnIndex(colB)
	if !okA || !okB {
		return nil, nil
	}
	for r := 0; r < table.NumRows(); r++ {
		va, vb := table.At(r, a), table.At(r, b)
		if va.Kind == tabular.KindNumber && vb.Kind == tabular.KindNumber {
			xs = append(xs, va.Num)
			ys = append(ys, vb.Num)
		}
	}
	return xs, ys
}

// trendSeries pairs a numeric column with an x-axis: the temporal column when
// one exists (ordered by it), otherwise row order.
func trendSeries(table *tabular.Table, timeCol, numCol string) (xs, ys []float64) {
	n, ok := table.ColumnIndex(numCol)
	if !ok {
		return nil, nil
	}

	if timeCol == "" {
		for r := 0; r < table.NumRows(); r++ {
			v := table.At(r, n)
			if v.Kind == tabular.KindNumber {
				xs = append(xs, float64(len(xs)))
				ys = append(ys, v.Num)
			}
		}
		return xs, ys
	}

	tc, ok := table.ColumnIndex(timeCol)
	if !ok {
		return trendSeries(table, "", numCol)
	}

	type point struct {
		t float64
		v float64
	}
	var points []point
	for r := 0; r < table.NumRows(); r++ {
		tv, nv := table.At(r, tc), table.At(r, n)
		if tv.Kind == tabular.KindTime && nv.Kind == tabular.KindNumber {
			points = append(points, point{t: float64(tv.Time.Unix()), v: nv.Num})
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].t < points[j].t })
	for i, p := range points {
		xs = append(xs, float64(i))
		ys = append(ys, p.v)
	}
	return xs, ys
}

func firstDatetimeColumn(schema *models.SchemaDescriptor) string {
	for _, col := range schema.Columns {
		if col.Type == models.ColumnTypeDatetime {
			return col.Name
		}
	}
	return ""
}

func capFloats(values []float64, max int) []float64 {
	if len(values) <= max {
		return values
	}
	return values[:max]
}
