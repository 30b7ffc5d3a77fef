package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Size описывает размер товара. Для товаров без размерной сетки используется SizeUnique.
type Size string

const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"

	// SizeUnique: единственный слот для товара без размеров.
	SizeUnique Size = "unique"
)

// NormalizeSize приводит размер к каноничному виду: пустое значение превращается в SizeUnique.
func NormalizeSize(raw string) Size {
	value := strings.TrimSpace(raw)
	if value == "" || strings.EqualFold(value, string(SizeUnique)) {
		return SizeUnique
	}
	return Size(strings.ToUpper(value))
}

// Known сообщает, входит ли размер в стандартную сетку (или является SizeUnique).
func (s Size) Known() bool {
	switch s {
	case SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL, SizeUnique:
		return true
	default:
		return false
	}
}

// ItemKey: составной ключ позиции (товар + размер), общий для склада и корзины.
type ItemKey struct {
	ItemID int64
	Size   Size
}

// NewItemKey строит ключ с нормализованным размером.
// Все карты обязаны получать ключи только через эту функцию.
func NewItemKey(itemID int64, size Size) ItemKey {
	return ItemKey{ItemID: itemID, Size: NormalizeSize(string(size))}
}

// Valid проверяет, что ключ ссылается на реальный товар.
func (k ItemKey) Valid() bool {
	return k.ItemID > 0 && k.Size != ""
}

func (k ItemKey) String() string {
	return fmt.Sprintf("%d:%s", k.ItemID, k.Size)
}

// ProductRef: типизированная ссылка на товар вида "category/id".
type ProductRef struct {
	Category string
	ID       int64
}

// ParseProductRef разбирает ссылку "category/id" или просто "id".
// Лишние сегменты пути игнорируются, идентификатором считается последний.
func ParseProductRef(raw string) (ProductRef, error) {
	value := strings.Trim(strings.TrimSpace(raw), "/")
	if value == "" {
		return ProductRef{}, ErrProductRefInvalid
	}

	var category string
	idPart := value
	if idx := strings.LastIndex(value, "/"); idx >= 0 {
		category = strings.TrimSpace(value[:idx])
		if first := strings.Index(category, "/"); first >= 0 {
			category = category[:first]
		}
		idPart = value[idx+1:]
	}

	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil || id <= 0 {
		return ProductRef{}, fmt.Errorf("%w: %q", ErrProductRefInvalid, raw)
	}

	return ProductRef{Category: category, ID: id}, nil
}

func (r ProductRef) String() string {
	if r.Category == "" {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.Category + "/" + strconv.FormatInt(r.ID, 10)
}
