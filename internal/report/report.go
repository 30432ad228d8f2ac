// Package report turns extraction records into report rows and writes them
// as CSV, TOON or SQLite.
package report

import (
	"strings"

	"github.com/phobologic/sprocscan/internal/model"
)

// Aggregate converts records into rows. Pending records are dropped and
// duplicates removed. Square brackets and every strip prefix are removed
// from the command text, and merged alternatives become one row each.
// Row order follows record order.
func Aggregate(records []model.Record, strip []string) []model.Row {
	seenRec := make(map[model.RecordKey]bool, len(records))
	seenRow := make(map[model.Row]bool, len(records))
	var rows []model.Row

	add := func(r model.Row) {
		if seenRow[r] {
			return
		}
		seenRow[r] = true
		rows = append(rows, r)
	}

	for i := range records {
		rec := &records[i]
		if rec.IsPending() {
			continue
		}
		k := rec.Key()
		if seenRec[k] {
			continue
		}
		seenRec[k] = true

		if rec.Err != "" {
			add(model.Row{File: rec.File, LineNumber: rec.Line, ErrorMsg: rec.Err})
			continue
		}
		for _, alt := range strings.Split(clean(rec.Text, strip), model.AltSep) {
			if strings.TrimSpace(alt) == "" {
				continue
			}
			add(model.Row{File: rec.File, LineNumber: rec.Line, CommandText: alt, IsVariable: rec.Unresolved})
		}
	}
	return rows
}

func clean(text string, strip []string) string {
	text = strings.ReplaceAll(text, "[", "")
	text = strings.ReplaceAll(text, "]", "")
	for _, p := range strip {
		if p != "" {
			text = strings.ReplaceAll(text, p, "")
		}
	}
	return text
}
