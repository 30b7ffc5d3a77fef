package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// record: исходный JSON-объект, читаемый через описание сущности.
type record struct {
	entity Entity
	raw    map[string]any
}

func (r record) field(name string) (Field, bool) {
	f, ok := r.entity[name]
	return f, ok
}

// lookup возвращает первое определённое значение среди кандидатов поля.
// Для строковых полей кандидаты-объекты и списки пропускаются.
func (r record) lookup(name string) (any, Field, bool) {
	f, ok := r.field(name)
	if !ok {
		return nil, Field{}, false
	}
	for _, path := range f.From {
		value, found := walk(r.raw, path)
		if !found || value == nil {
			continue
		}
		if f.Kind == KindString && !scalar(value) {
			continue
		}
		return value, f, true
	}
	return nil, f, false
}

// Has сообщает, что хотя бы один кандидат поля присутствует.
func (r record) Has(name string) bool {
	_, _, ok := r.lookup(name)
	return ok
}

func (r record) String(name string) string {
	value, f, ok := r.lookup(name)
	if !ok {
		return f.Default
	}
	return strings.TrimSpace(stringOf(value))
}

func (r record) Int(name string) int64 {
	value, f, ok := r.lookup(name)
	if ok {
		if n, parsed := intOf(value); parsed {
			return n
		}
	}
	n, _ := intOf(f.Default)
	return n
}

func (r record) Decimal(name string) decimal.Decimal {
	if d, ok := r.OptDecimal(name); ok {
		return d
	}
	f, _ := r.field(name)
	d, ok := decimalOf(f.Default)
	if !ok {
		return decimal.Zero
	}
	return d
}

// OptDecimal возвращает значение только если оно присутствует и разбирается.
func (r record) OptDecimal(name string) (decimal.Decimal, bool) {
	value, _, ok := r.lookup(name)
	if !ok {
		return decimal.Zero, false
	}
	return decimalOf(value)
}

func (r record) Bool(name string) bool {
	value, f, ok := r.lookup(name)
	if ok {
		if b, parsed := boolOf(value); parsed {
			return b
		}
	}
	b, _ := boolOf(f.Default)
	return b
}

func (r record) Time(name string) time.Time {
	value, _, ok := r.lookup(name)
	if !ok {
		return time.Time{}
	}
	t, _ := timeOf(value)
	return t
}

func (r record) List(name string) []any {
	value, _, ok := r.lookup(name)
	if !ok {
		return nil
	}
	if list, isList := value.([]any); isList {
		return list
	}
	return nil
}

func (r record) Value(name string) (any, bool) {
	value, _, ok := r.lookup(name)
	return value, ok
}

func (r record) Object(name string) (map[string]any, bool) {
	value, _, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	m, isMap := value.(map[string]any)
	return m, isMap
}

func walk(raw map[string]any, path string) (any, bool) {
	if value, ok := raw[path]; ok {
		return value, true
	}
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return nil, false
	}

	var current any = raw
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func scalar(value any) bool {
	switch value.(type) {
	case string, json.Number, float64, float32, int, int64, int32, bool:
		return true
	default:
		return false
	}
}

func stringOf(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func intOf(value any) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return int64(v), true
		}
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	}
	return 0, false
}

func decimalOf(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

func boolOf(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "si", "sí", "on":
			return true, true
		case "0", "false", "no", "off", "":
			return false, true
		}
	case json.Number, float64, int, int64:
		n, ok := intOf(v)
		return n != 0, ok
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timeOf(value any) (time.Time, bool) {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	}

	n, ok := intOf(value)
	if !ok || n <= 0 {
		return time.Time{}, false
	}
	// Значения больше 1e12 считаются миллисекундами.
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}
