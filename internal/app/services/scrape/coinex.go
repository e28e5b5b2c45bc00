package scrape

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
)

// CoinEx lists crypto markets in USD only; change text carries its own sign,
// which is kept as the textual marker (the page exposes no class cue).

var coinExNames = map[string]string{
	"Bitcoin":  "بیت‌کوین",
	"Ethereum": "اتریوم",
	"Ripple":   "ریپل",
	"Solana":   "سولانا",
	"Dogecoin": "دوج‌کوین",
	"Cardano":  "کاردانو",
	"Tron":     "ترون",
	"Toncoin":  "تون‌کوین",
	"Litecoin": "لایت‌کوین",
}

// CoinExPlan returns the crypto extraction plan for coinex.com.
func CoinExPlan() Plan {
	return Plan{
		Source:        market.SourceCoinEx,
		Category:      market.CategoryCrypto,
		URL:           "https://www.coinex.com/en/markets/coin",
		ReadySelector: "tr.body-row",
		RowSelector:   "tr.body-row",
		Relevant: func(row *goquery.Selection) bool {
			cells := row.Find("td")
			if cells.Length() < 3 {
				return false
			}
			name := text(cells.Eq(2), "span.coin-full-name span")
			_, ok := coinExNames[name]
			return ok
		},
		MapRow: mapCoinExRow,
	}
}

func mapCoinExRow(row *goquery.Selection, batch time.Time) (market.PriceRecord, error) {
	cells := row.Find("td")
	if cells.Length() < 7 {
		return market.PriceRecord{}, fmt.Errorf("coinex row: expected 7 cells, got %d", cells.Length())
	}

	name := text(cells.Eq(2), "span.coin-full-name span")
	if name == "" {
		return market.PriceRecord{}, fmt.Errorf("coinex row: missing coin name")
	}

	symbol := text(cells.Eq(2), "span.text-16")
	price := cleanNumber(text(cells.Eq(3), "span"))
	if price == "" {
		return market.PriceRecord{}, fmt.Errorf("coinex row %q: empty price cell", name)
	}

	change := strings.TrimSpace(text(cells.Eq(4), "span"))
	marketCap := text(cells.Eq(5), "span")
	volume := text(cells.Eq(6), "span")

	return market.PriceRecord{
		Title:         name,
		LocalName:     coinExNames[name],
		Symbol:        symbol,
		Price:         price,
		ChangePercent: change,
		MarketCap:     marketCap,
		Volume:        volume,
		LastUpdate:    batch,
	}, nil
}
