// Package catalog loads the products offered for checkout from a YAML file.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/paysync/internal/billing/model"
)

type Product struct {
	ID          string     `yaml:"id" json:"id"`
	PriceID     string     `yaml:"price_id" json:"priceId"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Mode        model.Mode `yaml:"mode" json:"mode"`
	Price       string     `yaml:"price" json:"price"`
}

// Catalog is an immutable product list indexed by price id.
type Catalog struct {
	products []Product
	byPrice  map[string]int
}

type file struct {
	Products []Product `yaml:"products"`
}

// Load reads a catalog file. An empty path yields an empty catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Products)
}

// New validates products and builds the price index.
func New(products []Product) (*Catalog, error) {
	c := &Catalog{byPrice: make(map[string]int, len(products))}
	var errs []error
	for i, p := range products {
		if p.PriceID == "" {
			errs = append(errs, fmt.Errorf("product %d (%s): price_id is required", i, p.Name))
			continue
		}
		if p.Mode != model.ModePayment && p.Mode != model.ModeSubscription {
			errs = append(errs, fmt.Errorf("product %s: mode must be payment or subscription, got %q", p.PriceID, p.Mode))
			continue
		}
		if _, dup := c.byPrice[p.PriceID]; dup {
			errs = append(errs, fmt.Errorf("product %s: duplicate price_id", p.PriceID))
			continue
		}
		c.byPrice[p.PriceID] = len(c.products)
		c.products = append(c.products, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// Products returns a copy of the catalog in file order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// ByPriceID returns the product sold at priceID.
func (c *Catalog) ByPriceID(priceID string) (Product, bool) {
	i, ok := c.byPrice[priceID]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}
