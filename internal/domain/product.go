package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Image описывает изображение товара.
type Image struct {
	URL       string `json:"url"`
	Principal bool   `json:"principal"`
	Order     int    `json:"order"`
}

// SizeVariant: размерный вариант товара со своим остатком и опциональной ценой.
type SizeVariant struct {
	Size  Size             `json:"size"`
	Stock int              `json:"stock"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

// Product: нормализованное представление товара каталога.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Images      []Image         `json:"images"`
	Sizes       []SizeVariant   `json:"sizes"`
}

// Category описывает категорию каталога.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// Ref возвращает ссылку на товар в формате category/id.
func (p Product) Ref() ProductRef {
	return ProductRef{Category: p.Category, ID: p.ID}
}

// SizeList возвращает размеры товара в порядке вариантов.
func (p Product) SizeList() []Size {
	sizes := make([]Size, 0, len(p.Sizes))
	for _, v := range p.Sizes {
		sizes = append(sizes, v.Size)
	}
	return sizes
}

// PriceFor возвращает цену варианта, если она переопределена, иначе базовую цену.
func (p Product) PriceFor(size Size) decimal.Decimal {
	size = NormalizeSize(string(size))
	for _, v := range p.Sizes {
		if v.Size == size && v.Price != nil {
			return *v.Price
		}
	}
	return p.Price
}

// PrincipalImage возвращает основное изображение: помеченное principal, иначе первое по порядку.
func (p Product) PrincipalImage() (Image, bool) {
	if len(p.Images) == 0 {
		return Image{}, false
	}
	for _, img := range p.Images {
		if img.Principal {
			return img, true
		}
	}
	images := append([]Image(nil), p.Images...)
	sort.SliceStable(images, func(i, j int) bool { return images[i].Order < images[j].Order })
	return images[0], true
}
