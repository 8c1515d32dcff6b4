package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNoSize means the size cell was empty.
	ErrNoSize = errors.New("no size")
	// ErrUnparseableSize means the size cell is not a number ("M", "38-39").
	ErrUnparseableSize = errors.New("unparseable size")
)

var rxKeepNums = regexp.MustCompile(`[^\d\.\-]`)

var spaceStripper = strings.NewReplacer("\u00A0", "", "\u202F", "", " ", "", "\t", "")

// ParseFloatRU парсит "1 234,50", "197 ,00", "2 345,6" (NBSP/NNBSP) и т.п.
// Lenient: garbage around the digits is dropped. Used for stock quantities.
func ParseFloatRU(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(spaceStripper.Replace(s), ",", ".")
	// оставить только цифры, точку и минус (на случай мусора)
	s = rxKeepNums.ReplaceAllString(s, "")
	if s == "" || s == "-" || s == "." {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// ParseSize parses a locale-variant numeric size ("38", "38,5", "38.5").
// Unlike ParseFloatRU it keeps no tolerance for garbage: anything that is not
// a plain number after the comma→dot swap is ErrUnparseableSize.
func ParseSize(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrNoSize
	}
	s = strings.ReplaceAll(spaceStripper.Replace(s), ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableSize, raw)
	}
	return f, nil
}
