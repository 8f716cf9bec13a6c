package models

import (
	"time"

	"github.com/google/uuid"
)

// InsightType classifies a synthesized insight.
type InsightType string

const (
	InsightTypeTrend        InsightType = "trend"
	InsightTypeCorrelation  InsightType = "correlation"
	InsightTypeAnomaly      InsightType = "anomaly"
	InsightTypeDistribution InsightType = "distribution"
	InsightTypeStatistical  InsightType = "statistical"
	InsightTypeSummary      InsightType = "summary"
)

// insightTypePriority orders types for equal-confidence tie-breaking.
// Lower is higher priority.
var insightTypePriority = map[InsightType]int{
	InsightTypeTrend:        0,
	InsightTypeCorrelation:  1,
	InsightTypeAnomaly:      2,
	InsightTypeDistribution: 3,
	InsightTypeStatistical:  4,
	InsightTypeSummary:      5,
}

// Priority returns the tie-break rank of t; unknown types sort last.
func (t InsightType) Priority() int {
	if p, ok := insightTypePriority[t]; ok {
		return p
	}
	return len(insightTypePriority)
}

// Insight is one synthesized statistical finding. Immutable after creation.
type Insight struct {
	ID             uuid.UUID      `json:"id"`
	DatasetID      uuid.UUID      `json:"dataset_id"`
	QueryID        *uuid.UUID     `json:"query_id,omitempty"`
	InsightType    InsightType    `json:"insight_type"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Confidence     float64        `json:"confidence"` // always in [0,1]
	SupportingData map[string]any `json:"supporting_data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
