package catalog

import "time"

// Product is a purchasable item in the catalog. Products are never deleted;
// the id stays stable once assigned.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
