package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/phobologic/sprocscan/internal/model"
)

// Header is the column order of every report format.
var Header = []string{"File", "LineNumber", "CommandText", "IsVariable", "ErrorMsg"}

// WriteCSV writes rows with a header line. Booleans are written as True
// and False.
func WriteCSV(w io.Writer, rows []model.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.File,
			strconv.Itoa(r.LineNumber),
			r.CommandText,
			pascalBool(r.IsVariable),
			r.ErrorMsg,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

func pascalBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
