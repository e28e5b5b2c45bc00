// Package market defines the price snapshot model shared by the scrape
// pipeline, the stores and the HTTP layer.
package market

import (
	"fmt"
	"time"
)

// Source identifies a scraped site.
type Source string

const (
	SourceTGJU       Source = "tgju"
	SourceArzDigital Source = "arzdigital"
	SourceCoinEx     Source = "coinex"
)

// Category identifies an asset class within a source.
type Category string

const (
	CategoryGold     Category = "gold"
	CategoryCoin     Category = "coin"
	CategoryCurrency Category = "currency"
	CategoryCrypto   Category = "crypto"
)

// PriceRecord is one normalized asset row. Prices are kept as normalized
// strings, ASCII digits with no grouping separators, because sources mix
// integer rials with fractional dollar quotes.
type PriceRecord struct {
	Title         string    `json:"title"`
	LocalName     string    `json:"name_fa,omitempty"`
	Symbol        string    `json:"symbol,omitempty"`
	Price         string    `json:"price"`
	PriceUSD      string    `json:"price_usd,omitempty"`
	ChangePercent string    `json:"change_percentage,omitempty"`
	ChangeAmount  string    `json:"change_amount,omitempty"`
	MarketCap     string    `json:"market_cap,omitempty"`
	Volume        string    `json:"volume_24h,omitempty"`
	LastUpdate    time.Time `json:"last_update"`
}

// Snapshot is the complete extraction result for one (source, category) pair.
type Snapshot struct {
	Source      Source        `json:"source"`
	Category    Category      `json:"category"`
	Records     []PriceRecord `json:"records"`
	RetrievedAt time.Time     `json:"retrieved_at"`
}

// Key addresses a snapshot in a store.
type Key struct {
	Source   Source
	Category Category
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Source, k.Category)
}
