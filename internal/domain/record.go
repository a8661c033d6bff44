package domain

import "time"

// CatalogRecord is one line of a partition catalog.
type CatalogRecord struct {
	Product  string    `json:"product"`
	DateTime time.Time `json:"date_time"`
	URI      string    `json:"uri"`
}
