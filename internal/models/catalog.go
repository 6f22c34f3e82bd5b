package models

import "time"

// Product mirrors the seeded catalog record shape.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	ImageURL    string  `json:"image_url"`
	Rating      float64 `json:"rating"`
}

// OrderRecord is the persisted result of a successful order placement. Total
// is always computed from the stored product price, never taken from input.
type OrderRecord struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}
