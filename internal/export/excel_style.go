package export

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ApplyDefaultExcelFormatting applies:
// - bold header (row 1),
// - auto-filter on row 1,
// - approximate auto-width for all data columns present on the sheet.
func ApplyDefaultExcelFormatting(f *excelize.File, sheet string) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if cols == 0 {
		return nil
	}

	// Header bold
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", fmt.Sprintf("%s1", colName(cols)), style)
	}

	// Filter on row 1 across all populated columns
	_ = f.AutoFilter(sheet, fmt.Sprintf("A1:%s1", colName(cols)), nil)

	// Auto-fit column widths by content length heuristic
	widths := make([]float64, cols)
	for c := 0; c < cols; c++ {
		widths[c] = 10
	}
	for rIdx, row := range rows {
		for cIdx := 0; cIdx < cols; cIdx++ {
			var v string
			if cIdx < len(row) {
				v = row[cIdx]
			}
			w := float64(len([]rune(v))) * 1.1
			if rIdx == 0 {
				w += 1.5
			}
			if w > widths[cIdx] {
				if w > 60 {
					w = 60
				}
				widths[cIdx] = w
			}
		}
	}
	for i := 0; i < cols; i++ {
		col := colName(i + 1)
		_ = f.SetColWidth(sheet, col, col, widths[i])
	}
	return nil
}

// BuildDuesRegisterFilename Build human-readable filenames.
func BuildDuesRegisterFilename(sessionName string) string {
	return sanitizeFileName(fmt.Sprintf("Реестр долгов — %s.xlsx", cleanName(sessionName)))
}

// Utility helpers

func colName(n int) string {
	// 1 -> A; 27 -> AA
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}

var invalidFileRe = regexp.MustCompile(`[\\/:*?"<>|]+`)

func sanitizeFileName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = invalidFileRe.ReplaceAllString(s, "_")
	return s
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "—"
	}
	return s
}
