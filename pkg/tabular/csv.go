package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// FromCSV builds a Table from raw CSV bytes. The first record is the header.
// Malformed records are skipped rather than failing the whole file.
func FromCSV(data []byte) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	var records [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		// Normalize short/long records against the header so FromRecords
		// keeps what it can.
		if len(rec) != len(header) {
			fixed := make([]string, len(header))
			copy(fixed, rec)
			rec = fixed
		}
		records = append(records, rec)
	}

	return FromRecords(header, records)
}
