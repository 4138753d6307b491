package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formats accepted by Write.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

func (r Row) values(score string) []string {
	updated := ""
	if !r.UpdatedAt.IsZero() {
		updated = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.RunID, string(r.RunType), r.DealID, r.OrgID, string(r.Status),
		strconv.FormatBool(r.Reused), score, r.Tier, r.Decision, r.Lane, r.Error, updated,
	}
}

func plainScore(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "report: write CSV header")
	}
	for _, r := range rows {
		if err := cw.Write(r.values(plainScore(r.Score))); err != nil {
			return eris.Wrap(err, "report: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush CSV")
}

// WriteTable writes an aligned console table. Scores use English digit
// grouping and two decimals; a missing score prints as "-".
func WriteTable(w io.Writer, rows []Row) error {
	p := message.NewPrinter(language.English)
	if _, err := fmt.Fprintf(w, "%-36s %-10s %-16s %-12s %8s %-5s %-11s %-14s\n",
		"Run", "Type", "Deal", "Status", "Score", "Tier", "Decision", "Lane"); err != nil {
		return eris.Wrap(err, "report: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 120)); err != nil {
		return eris.Wrap(err, "report: write table separator")
	}
	for _, r := range rows {
		score := "-"
		if r.Score != nil {
			score = p.Sprintf("%.2f", *r.Score)
		}
		status := string(r.Status)
		if r.Reused {
			status += "*"
		}
		if _, err := fmt.Fprintf(w, "%-36s %-10s %-16s %-12s %8s %-5s %-11s %-14s\n",
			r.RunID, r.RunType, truncate(r.DealID, 16), status, score, r.Tier, r.Decision, r.Lane); err != nil {
			return eris.Wrap(err, "report: write table row")
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// WriteXLSX saves rows to a single-sheet workbook at path. Scores are
// numeric cells.
func WriteXLSX(path string, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("runs")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for i, v := range r.values("") {
			cell := row.AddCell()
			if Header[i] == "score" && r.Score != nil {
				cell.SetFloat(*r.Score)
				continue
			}
			cell.SetString(v)
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// ReadSheet returns every row of a workbook sheet as strings. An empty
// sheetName reads the first sheet.
func ReadSheet(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: open %s", path)
	}
	var sheet *xlsx.Sheet
	switch {
	case sheetName != "":
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("report: sheet %q not found", sheetName)
		}
		sheet = s
	case len(f.Sheets) > 0:
		sheet = f.Sheets[0]
	default:
		return nil, eris.Errorf("report: %s has no sheets", path)
	}

	out := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		out = append(out, cells)
	}
	return out, nil
}
