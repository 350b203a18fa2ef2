// Package render подставляет значения переменных в шаблоны уведомлений.
//
// Синтаксис плейсхолдеров: {{key}}. Пробелы внутри скобок игнорируются,
// регистр ключа не важен ({{ Name }} найдёт "name"). Отсутствующий ключ
// даёт пустую строку, а не ошибку и не исходный плейсхолдер.
package render

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// placeholderRe — {{ key }} с произвольными пробелами внутри.
var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// tagRe — HTML теги для StripHTML.
var tagRe = regexp.MustCompile(`<[^>]*>`)

// Fill заменяет плейсхолдеры в tmpl значениями из vars.
func Fill(tmpl string, vars map[string]any) string {
	// Быстрый путь: нет шаблонных выражений
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		val, ok := lookup(vars, key)
		if !ok {
			return ""
		}
		return FormatValue(val)
	})
}

// lookup ищет ключ сначала точно, затем в нижнем регистре, затем без учёта
// регистра. Среди нескольких совпадений без учёта регистра выигрывает
// наименьший ключ, чтобы результат не зависел от порядка обхода map.
func lookup(vars map[string]any, key string) (any, bool) {
	if key == "" || vars == nil {
		return nil, false
	}
	if val, ok := vars[key]; ok {
		return val, true
	}
	if val, ok := vars[strings.ToLower(key)]; ok {
		return val, true
	}
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		if strings.EqualFold(k, key) {
			return vars[k], true
		}
	}
	return nil, false
}

// FormatValue приводит скалярное значение к строке.
//
// Числа из JSON приходят как float64: 42 печатается как "42", а не "4.2e+01".
// nil даёт пустую строку.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// StripHTML убирает теги, оставляя текст. Используется для text/plain версии письма.
func StripHTML(html string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(html, ""))
}
