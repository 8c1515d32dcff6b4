package fileio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// readCSV: валидный UTF-8 (с BOM или без) читаем как есть, иначе это
// Windows-1251, если chardet не уверен в KOI8-R. Разделитель: ',' ';' или таб.
func readCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	peek, _ := br.Peek(4096)

	var dec io.Reader = br
	if !looksUTF8(peek) {
		cm := charmap.Windows1251
		if det, err := chardet.NewTextDetector().DetectBest(peek); err == nil && det != nil &&
			strings.EqualFold(det.Charset, "koi8-r") && det.Confidence >= 50 {
			cm = charmap.KOI8R
		}
		dec = transform.NewReader(br, cm.NewDecoder())
	}

	cr := csv.NewReader(dec)
	cr.Comma = sniffDelimiter(peek)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// looksUTF8 допускает обрезанный на границе буфера последний символ.
func looksUTF8(b []byte) bool {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return true
		}
		b = b[:len(b)-1]
	}
	return len(b) == 0
}

// sniffDelimiter считает разделители по первым строкам (над шапкой бывает
// строка-заголовок отчёта без разделителей): ';' или таб побеждают, если их больше, чем ','.
func sniffDelimiter(peek []byte) rune {
	var comma, semi, tab int
	for i, line := range bytes.Split(peek, []byte("\n")) {
		if i == sniffLines {
			break
		}
		comma += bytes.Count(line, []byte(","))
		semi += bytes.Count(line, []byte(";"))
		tab += bytes.Count(line, []byte("\t"))
	}
	switch {
	case semi > comma && semi >= tab:
		return ';'
	case tab > comma:
		return '\t'
	}
	return ','
}

const sniffLines = 10
