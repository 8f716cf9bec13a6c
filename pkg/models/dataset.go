package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DatasetStatus tracks the profiling lifecycle of a dataset.
// Transitions are uploaded → processing → ready|error, never backward.
type DatasetStatus string

const (
	DatasetStatusUploaded   DatasetStatus = "uploaded"
	DatasetStatusProcessing DatasetStatus = "processing"
	DatasetStatusReady      DatasetStatus = "ready"
	DatasetStatusError      DatasetStatus = "error"
)

// ColumnType is the inferred type of a dataset column.
type ColumnType string

const (
	ColumnTypeNumeric     ColumnType = "numeric"
	ColumnTypeCategorical ColumnType = "categorical"
	ColumnTypeDatetime    ColumnType = "datetime"
	ColumnTypeText        ColumnType = "text"
)

// ColumnDescriptor summarizes one column of a profiled dataset.
// NumericStats is only populated for numeric columns.
type ColumnDescriptor struct {
	Name         string        `json:"name"`
	Type         ColumnType    `json:"type"`
	SampleValues []string      `json:"sample_values,omitempty"`
	DistinctCount int          `json:"distinct_count"`
	NullCount    int           `json:"null_count"`
	NumericStats *NumericStats `json:"numeric_stats,omitempty"`
}

// NumericStats holds descriptive statistics for a numeric column.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// SchemaDescriptor is the ordered column summary that grounds translation
// and insight synthesis.
type SchemaDescriptor struct {
	Columns []ColumnDescriptor `json:"columns"`
}

// Dataset represents an uploaded tabular dataset and its profiling state.
type Dataset struct {
	ID           uuid.UUID         `json:"id"`
	OwnerID      uuid.UUID         `json:"owner_id"`
	Name         string            `json:"name"`
	RowCount     int               `json:"row_count"`
	ColumnCount  int               `json:"column_count"`
	Schema       *SchemaDescriptor `json:"schema,omitempty"`
	Status       DatasetStatus     `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// DatasetPreview is a bounded sample of a dataset's rows, in upload order.
// RowCount is the full table size, which may exceed len(Rows).
type DatasetPreview struct {
	Columns  []string    `json:"columns"`
	Rows     []ResultRow `json:"rows"`
	RowCount int         `json:"row_count"`
}

// CanTransitionTo reports whether moving to next is a legal status change.
func (s DatasetStatus) CanTransitionTo(next DatasetStatus) bool {
	switch s {
	case DatasetStatusUploaded:
		return next == DatasetStatusProcessing
	case DatasetStatusProcessing:
		return next == DatasetStatusReady || next == DatasetStatusError
	default:
		return false
	}
}

// NumericColumns returns descriptors of all numeric columns in order.
func (d *SchemaDescriptor) NumericColumns() []ColumnDescriptor {
	var out []ColumnDescriptor
	for _, c := range d.Columns {
		if c.Type == ColumnTypeNumeric {
			out = append(out, c)
		}
	}
	return out
}

// Column returns the descriptor for name, or nil if unknown. Matching is
// case-insensitive because generated expressions do not preserve casing.
func (d *SchemaDescriptor) Column(name string) *ColumnDescriptor {
	for i := range d.Columns {
		if strings.EqualFold(d.Columns[i].Name, name) {
			return &d.Columns[i]
		}
	}
	return nil
}
