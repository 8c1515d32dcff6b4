package fileio

import (
	"bytes"
	"errors"
	"io"

	xls "github.com/extrame/xls"
)

// Старый .xls из 1С: Row.LastCol() врёт, поэтому ширину таблицы считаем сами.
const xlsProbeCols = 256

// xlsWidth: самая правая непустая колонка по всему листу, шапка включительно.
func xlsWidth(sheet *xls.WorkSheet) int {
	width := 0
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		for j := xlsProbeCols - 1; j >= width; j-- {
			if normalizeCell(row.Col(j)) != "" {
				width = j + 1
				break
			}
		}
	}
	return max(width, 1)
}

// readXLS перебирает кодировки: чаще всего cp1251, иногда UTF-8 или KOI8-R.
func readXLS(r io.Reader, headerRow int) ([][]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var (
		wb      *xls.WorkBook
		lastErr = errors.New("xls: failed to open workbook")
	)
	for _, charset := range []string{"windows-1251", "utf-8", "koi8-r"} {
		w, err := xls.OpenReader(bytes.NewReader(b), charset)
		if err == nil && w != nil {
			wb = w
			break
		}
		if err != nil {
			lastErr = err
		}
	}
	if wb == nil {
		return nil, lastErr
	}

	sheet := wb.GetSheet(0)
	if sheet == nil || int(sheet.MaxRow)+1 < headerRow {
		return nil, nil
	}

	width := xlsWidth(sheet)
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		cols := make([]string, width)
		if row := sheet.Row(i); row != nil {
			for j := range cols {
				cols[j] = row.Col(j)
			}
		}
		rows = append(rows, cols)
	}
	return rows, nil
}
