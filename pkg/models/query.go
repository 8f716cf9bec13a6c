package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryType classifies the intent of a translated query.
type QueryType string

const (
	QueryTypeAggregation   QueryType = "aggregation"
	QueryTypeFiltering     QueryType = "filtering"
	QueryTypeSorting       QueryType = "sorting"
	QueryTypeGrouping      QueryType = "grouping"
	QueryTypeStatistical   QueryType = "statistical"
	QueryTypeVisualization QueryType = "visualization"
)

// ParseQueryType maps a raw model output onto the closed enum.
// Unrecognized or ambiguous values default to filtering.
func ParseQueryType(raw string) QueryType {
	switch QueryType(raw) {
	case QueryTypeAggregation, QueryTypeFiltering, QueryTypeSorting,
		QueryTypeGrouping, QueryTypeStatistical, QueryTypeVisualization:
		return QueryType(raw)
	default:
		return QueryTypeFiltering
	}
}

// QueryStatus tracks the execution lifecycle of a query.
type QueryStatus string

const (
	QueryStatusPending QueryStatus = "pending"
	QueryStatusSuccess QueryStatus = "success"
	QueryStatusError   QueryStatus = "error"
)

// Feedback is the user's verdict on a query result.
type Feedback string

const (
	FeedbackNone       Feedback = "none"
	FeedbackThumbsUp   Feedback = "thumbs_up"
	FeedbackThumbsDown Feedback = "thumbs_down"
)

// Valid reports whether f is a recognized feedback value.
func (f Feedback) Valid() bool {
	switch f {
	case FeedbackNone, FeedbackThumbsUp, FeedbackThumbsDown:
		return true
	}
	return false
}

// VisualizationType describes how a result set should be rendered.
type VisualizationType string

const (
	VisualizationNumber VisualizationType = "number"
	VisualizationLine   VisualizationType = "line"
	VisualizationBar    VisualizationType = "bar"
	VisualizationPie    VisualizationType = "pie"
	VisualizationTable  VisualizationType = "table"
)

// ResultRow is one row of an executed query result, keyed by output column.
type ResultRow map[string]any

// Query represents one natural-language submission and its outcome.
// A Query is created once, mutated only to attach its result or error and
// later the user's feedback, and never re-executed in place.
type Query struct {
	ID                  uuid.UUID         `json:"id"`
	DatasetID           uuid.UUID         `json:"dataset_id"`
	OwnerID             uuid.UUID         `json:"owner_id"`
	NaturalLanguageText string            `json:"natural_language_text"`
	GeneratedExpression string            `json:"generated_expression,omitempty"`
	QueryType           QueryType         `json:"query_type,omitempty"`
	ResultColumns       []string          `json:"result_columns,omitempty"`
	ResultRows          []ResultRow       `json:"result_rows,omitempty"`
	ResultSummary       string            `json:"result_summary,omitempty"`
	Visualization       VisualizationType `json:"visualization,omitempty"`
	ExecutionTime       time.Duration     `json:"execution_time"`
	RowCount            int               `json:"row_count"`
	Status              QueryStatus       `json:"status"`
	ErrorMessage        string            `json:"error_message,omitempty"`
	UserFeedback        Feedback          `json:"user_feedback"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}
