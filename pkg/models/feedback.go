package models

import "time"

// FeedbackExample is one worked (schema, question, expression) triple derived
// from a thumbs-up query. Exemplar sets are built from these newest-first.
type FeedbackExample struct {
	SchemaInfo string    `json:"schema_info" yaml:"schema_info"`
	NLText     string    `json:"nl_text" yaml:"nl_text"`
	Expression string    `json:"expression" yaml:"expression"`
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at,omitempty"`
}

// ExemplarSet is an immutable snapshot of few-shot exemplars used by the
// translator. A set is fully built before publication and never mutated
// afterward; readers hold whichever snapshot was current when they started.
type ExemplarSet struct {
	Examples []FeedbackExample `json:"examples"`
	BuiltAt  time.Time         `json:"built_at"`
}
