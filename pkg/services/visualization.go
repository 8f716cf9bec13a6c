package services

import (
	"strings"

	"github.com/insightpilot/insight-engine/pkg/models"
)

// Keyword groups used by the visualization rules. Matching is
// case-insensitive substring matching over the question and the generated
// expression.
var (
	temporalKeywords = []string{
		"trend", "over time", "by month", "by year", "by day", "by week",
		"monthly", "yearly", "daily", "weekly", "timeline",
	}
	distributionKeywords = []string{
		"distribution", "percentage", "share", "breakdown", "proportion",
	}
	aggregationKeywords = []string{
		"group by", "count", "sum", "average", "avg", "top", "compare",
		"highest", "lowest", "total",
	}
	temporalColumnHints = []string{
		"date", "time", "month", "year", "day", "week", "timestamp",
	}
	identifierColumnHints = []string{"id", "uuid", "key", "code"}
)

// ClassifyVisualization maps an executed result plus the originating question
// to a rendering category. It is a pure function of its inputs: rules are
// checked in a fixed priority order and the first match wins.
func ClassifyVisualization(
	columns []string,
	rows []models.ResultRow,
	nlText string,
	expression string,
) models.VisualizationType {
	rowCount := len(rows)
	colCount := len(columns)
	if rowCount == 0 || colCount == 0 {
		return models.VisualizationTable
	}

	text := strings.ToLower(nlText + " " + expression)

	// 1. Single cell reads as a headline number.
	if rowCount == 1 && colCount == 1 {
		return models.VisualizationNumber
	}

	// 2. Time on the x-axis reads as a line chart.
	if hasTemporalColumn(columns, rows) || containsAny(text, temporalKeywords) {
		return models.VisualizationLine
	}

	// 3. Small two-column composition questions read as a pie chart.
	if colCount == 2 && rowCount <= 10 && containsAny(text, distributionKeywords) {
		return models.VisualizationPie
	}

	// 4. Aggregation or comparison questions over few rows read as bars.
	if containsAny(text, aggregationKeywords) && rowCount <= 50 {
		return models.VisualizationBar
	}

	// 5. Category-versus-measure shapes read as bars too.
	if rowCount <= 50 && hasCategoryMeasurePair(columns, rows) {
		return models.VisualizationBar
	}

	// 6. Small two-column results with one numeric column read as a pie.
	if colCount == 2 && rowCount <= 10 && countNumericColumns(columns, rows) == 1 {
		return models.VisualizationPie
	}

	// 7. Everything else falls back to a table.
	return models.VisualizationTable
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// hasTemporalColumn reports whether any column is named like a date or holds
// timestamp-looking values.
func hasTemporalColumn(columns []string, rows []models.ResultRow) bool {
	for _, col := range columns {
		lower := strings.ToLower(col)
		for _, hint := range temporalColumnHints {
			if strings.Contains(lower, hint) {
				return true
			}
		}
	}
	for _, col := range columns {
		if v, ok := firstValue(rows, col); ok {
			if s, ok := v.(string); ok && looksLikeTimestamp(s) {
				return true
			}
		}
	}
	return false
}

// hasCategoryMeasurePair reports whether the result pairs a categorical
// column with at least one numeric column that is not an identifier.
func hasCategoryMeasurePair(columns []string, rows []models.ResultRow) bool {
	hasCategory := false
	hasMeasure := false
	for _, col := range columns {
		if isNumericColumn(rows, col) {
			if !isIdentifierColumn(col) {
				hasMeasure = true
			}
		} else {
			hasCategory = true
		}
	}
	return hasCategory && hasMeasure
}

func countNumericColumns(columns []string, rows []models.ResultRow) int {
	n := 0
	for _, col := range columns {
		if isNumericColumn(rows, col) {
			n++
		}
	}
	return n
}

func isNumericColumn(rows []models.ResultRow, col string) bool {
	if v, ok := firstValue(rows, col); ok {
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
	}
	return false
}

func isIdentifierColumn(col string) bool {
	lower := strings.ToLower(col)
	for _, hint := range identifierColumnHints {
		if lower == hint || strings.HasSuffix(lower, "_"+hint) {
			return true
		}
	}
	return false
}

func firstValue(rows []models.ResultRow, col string) (any, bool) {
	for _, row := range rows {
		if v, ok := row[col]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func looksLikeTimestamp(s string) bool {
	if len(s) < 7 {
		return false
	}
	digits := 0
	for _, r := range s[:4] {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits == 4 && (s[4] == '-' || s[4] == '/')
}
