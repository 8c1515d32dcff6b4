package fileio

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file")
	ErrMissingColumn   = errors.New("required column not found")
)

// Field: логическое поле, которое ищем среди заголовков листа.
type Field string

const (
	FieldExternalCode  Field = "external_code"
	FieldBarcode       Field = "barcode"
	FieldType          Field = "type"
	FieldGender        Field = "gender"
	FieldSeason        Field = "season"
	FieldBrand         Field = "brand"
	FieldMaterial      Field = "material"
	FieldFastener      Field = "fastener"
	FieldColor         Field = "color"
	FieldSize          Field = "size"
	FieldStock         Field = "stock"
	FieldLastPrimary   Field = "last_primary"
	FieldLastSecondary Field = "last_secondary"
	FieldLastTertiary  Field = "last_tertiary"
	FieldSKU           Field = "sku"
	FieldTitle         Field = "title"
	FieldCategory      Field = "category"
)

// Column: Names поддерживает варианты через "|" ("Штрихкод|Баркод|EAN").
type Column struct {
	Field    Field
	Names    string
	Required bool
}

type Layout []Column

var ProductLayout = Layout{
	{FieldExternalCode, "Внешний код|Код|Код товара|External code", true},
	{FieldBarcode, "Штрихкод|Баркод|Barcode|EAN", false},
	{FieldType, "Вид|Тип|Вид обуви|Type", false},
	{FieldGender, "Пол|Gender", false},
	{FieldSeason, "Сезон|Season", false},
	{FieldBrand, "Бренд|Торговая марка|Brand", false},
	{FieldMaterial, "Материал|Материал верха|Material", false},
	{FieldFastener, "Застежка|Тип застежки|Fastener", false},
	{FieldColor, "Цвет|Color", false},
	{FieldSize, "Размер|Size", false},
	{FieldStock, "Остаток|Количество|Stock", false},
	{FieldLastPrimary, "Колодка|Колодка 1|Last", false},
	{FieldLastSecondary, "Колодка 2|Last 2", false},
	{FieldLastTertiary, "Колодка 3|Last 3", false},
}

var SizeMapLayout = Layout{
	{FieldBarcode, "Штрихкод|Баркод|Barcode|EAN", true},
	{FieldExternalCode, "Внешний код|Код|Код товара|External code", true},
	{FieldSize, "Размер|Размерная метка|Size", false},
}

var ListingLayout = Layout{
	{FieldSKU, "Артикул площадки|Артикул|SKU|Номенклатура", true},
	{FieldBarcode, "Штрихкод|Баркод|Barcode|EAN", true},
	{FieldTitle, "Наименование|Название|Title", false},
	{FieldCategory, "Категория|Предмет|Category", false},
}

var (
	reHeaderJunk = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	headerRepl   = strings.NewReplacer("\u00A0", " ", "\u202F", " ", "ё", "е")
)

// normHeaderKey: нижний регистр, ё→е, служебные символы и лишние пробелы прочь.
func normHeaderKey(s string) string {
	s = headerRepl.Replace(strings.ToLower(strings.TrimSpace(s)))
	s = reHeaderJunk.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Resolve сопоставляет поля макета реальным заголовкам листа. Сначала все
// поля ищутся точно (как есть, затем нормализованно), и только потом
// оставшиеся по вхождению имени в заголовок (составные шапки вроде
// "Остаток на складе, шт"). Короткие имена (< 4 букв) по вхождению не ищутся:
// "пол" не должен найтись в "полное наименование".
func (l Layout) Resolve(headers []string) (map[Field]string, error) {
	out := make(map[Field]string, len(l))
	used := make(map[string]bool, len(headers))

	for _, partial := range []bool{false, true} {
		for _, col := range l {
			if _, done := out[col.Field]; done {
				continue
			}
			if key := resolveKey(headers, col.Names, used, partial); key != "" {
				used[key] = true
				out[col.Field] = key
			}
		}
	}

	var missing []string
	for _, col := range l {
		if _, ok := out[col.Field]; !ok && col.Required {
			missing = append(missing, col.Names)
		}
	}
	if len(missing) > 0 {
		return out, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, "; "))
	}
	return out, nil
}

func resolveKey(headers []string, want string, used map[string]bool, partial bool) string {
	var alts []string
	for _, a := range strings.Split(want, "|") {
		if a = strings.TrimSpace(a); a != "" {
			alts = append(alts, a)
		}
	}

	if !partial {
		for _, a := range alts {
			for _, h := range headers {
				if h == a && !used[h] {
					return h
				}
			}
		}
		for _, a := range alts {
			na := normHeaderKey(a)
			for _, h := range headers {
				if !used[h] && normHeaderKey(h) == na {
					return h
				}
			}
		}
		return ""
	}

	best, bestLen := "", 0
	for _, a := range alts {
		na := normHeaderKey(a)
		if utf8.RuneCountInString(na) < 4 {
			continue
		}
		for _, h := range headers {
			if used[h] {
				continue
			}
			if strings.Contains(normHeaderKey(h), na) && len(na) > bestLen {
				best, bestLen = h, len(na)
			}
		}
	}
	return best
}

// looksLikeHeader: повторённая внутри данных шапка (склейка нескольких выгрузок).
func looksLikeHeader(cells map[string]string) bool {
	n := 0
	for h, v := range cells {
		if v != "" && normHeaderKey(v) == normHeaderKey(h) {
			n++
		}
	}
	return n >= 2
}
