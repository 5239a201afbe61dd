package naming

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ToCamel переводит this_attr_name в thisAttrName.
// Первая буква всегда становится строчной: "From" → "from".
func ToCamel(attr string) string {
	if attr == "" {
		return ""
	}

	first, size := utf8.DecodeRuneInString(attr)

	var b strings.Builder
	b.Grow(len(attr))
	b.WriteRune(unicode.ToLower(first))

	upperNext := false
	for _, r := range attr[size:] {
		if r == '_' && !upperNext {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
			continue
		}
		b.WriteRune(r)
	}

	// Хвостовой "_" без следующего символа сохраняем как есть
	if upperNext {
		b.WriteRune('_')
	}

	return b.String()
}

// FromCamel переводит thisAttrName в this_attr_name.
// Перед заглавной первой буквой подчёркивание не ставится: "ThisAttr" → "this_attr".
func FromCamel(attr string) string {
	var b strings.Builder
	b.Grow(len(attr) + 4)

	for i, r := range attr {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteRune('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// KeysToCamel возвращает копию m с ключами в camelCase.
// Ключи, которые уже в camelCase, не меняются.
func KeysToCamel(m map[string]any) map[string]any {
	return convertKeys(m, ToCamel)
}

// KeysFromCamel возвращает копию m с ключами в snake_case.
func KeysFromCamel(m map[string]any) map[string]any {
	return convertKeys(m, FromCamel)
}

func convertKeys(m map[string]any, fn func(string) string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[fn(k)] = v
	}
	return out
}
