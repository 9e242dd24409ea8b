package features

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

// WriteCSV exports vectors as bucket_start followed by the schema columns.
func WriteCSV(w io.Writer, schema Schema, vectors []Vector) error {
	cw := csv.NewWriter(w)
	header := append([]string{"bucket_start"}, schema...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range vectors {
		row := vectors[i].Row(schema)
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, vectors[i].BucketStart.Format(parsers.TimestampLayout))
		for _, x := range row {
			rec = append(rec, strconv.FormatFloat(x, 'f', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
