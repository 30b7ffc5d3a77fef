// Package normalize приводит ответы бэкенда к стабильным доменным структурам
// по декларативной таблице соответствия полей.
package normalize

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultFallbackStock: остаток синтезированного варианта, если бэкенд не прислал размеры.
const DefaultFallbackStock = 20

// Сущности, которые описывает таблица.
const (
	EntityProduct        = "product"
	EntityImage          = "image"
	EntitySizeVariant    = "size_variant"
	EntityCategory       = "category"
	EntityCartLine       = "cart_line"
	EntityOrder          = "order"
	EntityOrderLine      = "order_line"
	EntityUser           = "user"
	EntitySession        = "session"
	EntityContactMessage = "contact_message"
	EntityStockLevel     = "stock_level"
	EntityAmount         = "amount"
)

var requiredEntities = []string{
	EntityProduct, EntityImage, EntitySizeVariant, EntityCategory, EntityCartLine,
	EntityOrder, EntityOrderLine, EntityUser, EntitySession, EntityContactMessage,
	EntityStockLevel, EntityAmount,
}

// Kind: тип значения поля.
type Kind string

const (
	KindInt     Kind = "int"
	KindDecimal Kind = "decimal"
	KindString  Kind = "string"
	KindBool    Kind = "bool"
	KindTime    Kind = "time"
	KindList    Kind = "list"
	KindObject  Kind = "object"
)

func (k Kind) valid() bool {
	switch k {
	case KindInt, KindDecimal, KindString, KindBool, KindTime, KindList, KindObject:
		return true
	default:
		return false
	}
}

// Field описывает одно логическое поле: упорядоченных кандидатов в исходном JSON,
// тип и значение по умолчанию.
type Field struct {
	From    []string `yaml:"from"`
	Kind    Kind     `yaml:"kind"`
	Default string   `yaml:"default,omitempty"`
}

// Entity: набор полей одной сущности.
type Entity map[string]Field

// Table: таблица соответствия полей.
type Table struct {
	Version       string            `yaml:"version"`
	FallbackStock int               `yaml:"fallback_stock"`
	Envelope      Envelope          `yaml:"envelope"`
	StatusAliases map[string]string `yaml:"status_aliases"`
	Entities      map[string]Entity `yaml:"entities"`
}

// Envelope перечисляет ключи-обёртки ответа: для одиночного объекта и для списка.
type Envelope struct {
	Object []string `yaml:"object"`
	List   []string `yaml:"list"`
}

var (
	// ErrUnknownEntity: в таблице нет описания сущности.
	ErrUnknownEntity = errors.New("mapping entity is not defined")
	// ErrUnknownField: в описании сущности нет поля.
	ErrUnknownField = errors.New("mapping field is not defined")
)

//go:embed mapping.yaml
var defaultMapping []byte

// Parse разбирает YAML-таблицу и заполняет значения по умолчанию.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse mapping YAML: %w", err)
	}

	applyDefaults(&t)

	return &t, nil
}

// Default возвращает встроенную таблицу.
func Default() *Table {
	t, err := Parse(defaultMapping)
	if err != nil {
		panic(fmt.Sprintf("embedded mapping is broken: %v", err))
	}
	if err := t.Validate(); err != nil {
		panic(fmt.Sprintf("embedded mapping is invalid: %v", err))
	}
	return t
}

func applyDefaults(t *Table) {
	if t.Version == "" {
		t.Version = "1"
	}
	if t.FallbackStock <= 0 {
		t.FallbackStock = DefaultFallbackStock
	}
	if len(t.Envelope.Object) == 0 {
		t.Envelope.Object = []string{"data"}
	}
	if len(t.Envelope.List) == 0 {
		t.Envelope.List = []string{"data", "items", "results"}
	}
	if t.StatusAliases == nil {
		t.StatusAliases = make(map[string]string)
	}
	if t.Entities == nil {
		t.Entities = make(map[string]Entity)
	}
	for _, entity := range t.Entities {
		for name, field := range entity {
			if field.Kind == "" {
				field.Kind = KindString
			}
			if len(field.From) == 0 {
				field.From = []string{name}
			}
			entity[name] = field
		}
	}
}

// Validate проверяет, что описаны все сущности и у каждого поля корректный тип.
func (t *Table) Validate() error {
	var errs []error

	if t.FallbackStock <= 0 {
		errs = append(errs, fmt.Errorf("fallback_stock must be positive, got %d", t.FallbackStock))
	}
	for _, name := range requiredEntities {
		if _, ok := t.Entities[name]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownEntity, name))
		}
	}

	aliases := make([]string, 0, len(t.StatusAliases))
	for alias := range t.StatusAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if target := domain.OrderStatus(t.StatusAliases[alias]); !target.Valid() {
			errs = append(errs, fmt.Errorf("status alias %q points to unknown status %q", alias, target))
		}
	}

	entityNames := make([]string, 0, len(t.Entities))
	for name := range t.Entities {
		entityNames = append(entityNames, name)
	}
	sort.Strings(entityNames)

	for _, entityName := range entityNames {
		entity := t.Entities[entityName]
		fieldNames := make([]string, 0, len(entity))
		for name := range entity {
			fieldNames = append(fieldNames, name)
		}
		sort.Strings(fieldNames)

		for _, fieldName := range fieldNames {
			field := entity[fieldName]
			if !field.Kind.valid() {
				errs = append(errs, fmt.Errorf("%s.%s: unknown kind %q", entityName, fieldName, field.Kind))
			}
			seen := make(map[string]struct{}, len(field.From))
			for _, candidate := range field.From {
				if candidate == "" {
					errs = append(errs, fmt.Errorf("%s.%s: empty candidate", entityName, fieldName))
					continue
				}
				if _, dup := seen[candidate]; dup {
					errs = append(errs, fmt.Errorf("%s.%s: duplicate candidate %q", entityName, fieldName, candidate))
				}
				seen[candidate] = struct{}{}
			}
		}
	}

	return errors.Join(errs...)
}

// Field возвращает описание поля сущности.
func (t *Table) Field(entity, field string) (Field, error) {
	e, ok := t.Entities[entity]
	if !ok {
		return Field{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	f, ok := e[field]
	if !ok {
		return Field{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, entity, field)
	}
	return f, nil
}
