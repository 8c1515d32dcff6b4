package service

import (
	"regexp"
	"sort"
	"strings"
)

// Латиница→кириллица (визуальные двойники)
var lookalikes = map[rune]rune{
	'A': 'А', 'B': 'В', 'C': 'С', 'E': 'Е', 'H': 'Н', 'K': 'К', 'M': 'М', 'O': 'О', 'P': 'Р', 'T': 'Т', 'X': 'Х', 'Y': 'У',
	'a': 'а', 'c': 'с', 'e': 'е', 'o': 'о', 'p': 'р', 'x': 'х',
}

// 0,5 → 0.5
var decComma = regexp.MustCompile(`(\d),(\d)`)

// Единицы, встречающиеся в названиях обуви и аксессуаров
const unitWord = `мм|см|м|шт|р|размер|%`

// СКЛЕЙКА: "38 р" → "38р". \b в RE2 только ASCII, поэтому границы явные.
var reAttachNumUnit = regexp.MustCompile(`(?i)(^|\s)(\d+(?:[.,]\d+)?)\s*(` + unitWord + `)(\s|$)`)

// десятичная запятая к этому моменту уже точка, остальные запятые считаем мусором
var punct = regexp.MustCompile(`[^\p{L}\p{N}\s.%]+`)

// normalizeTitle: конвейер нормализации названий карточек двух площадок:
// unify lookalikes, lower case, decimal comma, strip punctuation, glue
// number+unit, sort tokens. Названия "Ботинки женские Xena 38" и
// "XENA ботинки, женские 38" сходятся к одной строке.
func normalizeTitle(s string) string {
	if s == "" {
		return ""
	}
	out := unifyLookalikes(s)
	out = strings.ToLower(out)
	out = decComma.ReplaceAllString(out, "$1.$2")
	out = collapseSpaces(punct.ReplaceAllString(out, " "))
	out = attachNumberUnitsEverywhere(out)
	return strings.TrimSpace(tokenSort(out))
}

// normalizeCategory is a lighter pipeline: categories are short and word
// order matters less than case and lookalike letters.
func normalizeCategory(s string) string {
	return collapseSpaces(strings.ToLower(unifyLookalikes(punct.ReplaceAllString(s, " "))))
}

// Ё→Е, лат→кир по lookalikes, ×/*/· → пробел
func unifyLookalikes(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case 'ё':
			r = 'е'
		case 'Ё':
			r = 'Е'
		case '×', '*', '·':
			r = ' '
		default:
			if rr, ok := lookalikes[r]; ok {
				r = rr
			}
		}
		b = append(b, r)
	}
	return string(b)
}

// Итеративная склейка "число + единица" по всей строке
func attachNumberUnitsEverywhere(s string) string {
	prev := ""
	out := collapseSpaces(s)
	for out != prev {
		prev = out
		out = collapseSpaces(reAttachNumUnit.ReplaceAllString(out, "$1$2$3$4"))
	}
	return out
}

func tokenSort(s string) string {
	f := strings.Fields(s)
	sort.Strings(f)
	return strings.Join(f, " ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
