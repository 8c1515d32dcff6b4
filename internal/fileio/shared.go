package fileio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Row: одна строка данных листа: номер строки в файле (1-based) и ячейки
// по именам заголовков.
type Row struct {
	Line  int
	Cells map[string]string
}

// Sheet is the first worksheet of a file (or the whole CSV).
type Sheet struct {
	Headers []string
	Rows    []Row
}

// ReadAny выберет парсер по расширению. headerRow: номер строки заголовков (1-based).
func ReadAny(r io.Reader, filename string, headerRow int) (*Sheet, error) {
	if headerRow < 1 {
		headerRow = 1
	}
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx":
		rows, err = readXLSX(r)
	case ".xls":
		rows, err = readXLS(r, headerRow)
	case ".csv", ".txt":
		rows, err = readCSV(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(rows) == 0 {
		return &Sheet{}, nil
	}
	h := pickHeader(rows, headerRow)
	return &Sheet{Headers: h, Rows: rowsToRecords(rows, h, headerRow)}, nil
}

// pickHeader берёт строку заголовков и подставляет Column N для пустых.
// Повторяющиеся имена получают суффикс " (2)", иначе значения затрут друг друга.
func pickHeader(rows [][]string, headerRow int) []string {
	idx := headerRow - 1
	if idx >= len(rows) {
		idx = 0
	}
	h := rows[idx]
	out := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, v := range h {
		v = normalizeCell(v)
		if v == "" {
			v = fmt.Sprintf("Column %d", i+1)
		}
		seen[v]++
		if n := seen[v]; n > 1 {
			v = fmt.Sprintf("%s (%d)", v, n)
		}
		out[i] = v
	}
	return out
}

// rowsToRecords: AoA в записи по заголовкам, полностью пустые строки пропускаются.
func rowsToRecords(rows [][]string, headers []string, headerRow int) []Row {
	var out []Row
	for r := headerRow; r < len(rows); r++ {
		rec := rows[r]
		cells := make(map[string]string, len(headers))
		empty := true
		for c, name := range headers {
			var v string
			if c < len(rec) {
				v = normalizeCell(rec[c])
			}
			if v != "" {
				empty = false
			}
			cells[name] = v
		}
		if !empty {
			out = append(out, Row{Line: r + 1, Cells: cells})
		}
	}
	return out
}

// normalizeCell: обрезка, NBSP → пробел, BOM прочь.
func normalizeCell(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.NewReplacer("\u00A0", " ", "\u202F", " ", "\r", "").Replace(s)
	return strings.TrimSpace(s)
}
