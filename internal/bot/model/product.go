package model

import "fmt"

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Stock       int     `json:"stock"`
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Summary renders a single catalog line for prompt building.
func (p Product) Summary() string {
	status := "in stock"
	if !p.InStock() {
		status = "out of stock"
	}
	return fmt.Sprintf("- %s: %.0f (%s)", p.Name, p.Price, status)
}
