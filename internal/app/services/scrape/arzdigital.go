package scrape

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
)

// ArzDigital lists crypto instruments with both a USD and a rial price. The
// rial column is quoted in toman, so it is rescaled by 10 to the canonical
// rial unit.

const arzDigitalScale = 10

var arzDigitalNames = map[string]string{
	"Bitcoin":     "بیت‌کوین",
	"Ethereum":    "اتریوم",
	"XRP":         "ریپل",
	"Solana":      "سولانا",
	"Dogecoin":    "دوج‌کوین",
	"Cardano":     "کاردانو",
	"TRON":        "ترون",
	"Toncoin":     "تون‌کوین",
	"Litecoin":    "لایت‌کوین",
	"Tether USDt": "تتر",
}

// ArzDigitalPlan returns the crypto extraction plan for arzdigital.com.
func ArzDigitalPlan() Plan {
	return Plan{
		Source:        market.SourceArzDigital,
		Category:      market.CategoryCrypto,
		URL:           "https://arzdigital.com/coins/",
		ReadySelector: "tr.arz-coin-tr",
		RowSelector:   "tr.arz-coin-tr",
		Settle:        5 * time.Second,
		Relevant: func(row *goquery.Selection) bool {
			name := text(row, "td.arz-coin-table__name-td span")
			_, ok := arzDigitalNames[name]
			return ok
		},
		MapRow: mapArzDigitalRow,
	}
}

func mapArzDigitalRow(row *goquery.Selection, batch time.Time) (market.PriceRecord, error) {
	name := text(row, "td.arz-coin-table__name-td span")
	if name == "" {
		return market.PriceRecord{}, fmt.Errorf("arzdigital row: missing name cell")
	}

	symbol, ok := row.Attr("data-symbol")
	if !ok {
		return market.PriceRecord{}, fmt.Errorf("arzdigital row %q: missing data-symbol", name)
	}

	priceUSD := text(row, "td.arz-coin-table__price-td span")
	if priceUSD == "" {
		return market.PriceRecord{}, fmt.Errorf("arzdigital row %q: missing usd price", name)
	}

	// Rial column: locale digits, thousands separators and a trailing toman
	// marker, quoted in toman.
	rialRaw := text(row, "td.arz-coin-table__rial-price-td span")
	if rialRaw == "" {
		return market.PriceRecord{}, fmt.Errorf("arzdigital row %q: missing rial price", name)
	}
	price, err := scaleInteger(stripTomanMarker(cleanNumber(rialRaw)), arzDigitalScale)
	if err != nil {
		return market.PriceRecord{}, fmt.Errorf("arzdigital row %q: %w", name, err)
	}

	marketCap := text(row, "td.arz-coin-table__marketcap-td span[dir='auto']")

	changeSel := row.Find("td.arz-coin-table__daily-swing-td span").First()
	if changeSel.Length() == 0 {
		return market.PriceRecord{}, fmt.Errorf("arzdigital row %q: missing change cell", name)
	}
	// The arz-negative class is the authoritative negative cue.
	negative := changeSel.HasClass("arz-negative")
	change := applySign(negative, asciiDigits(changeSel.Text()))

	return market.PriceRecord{
		Title:         name,
		LocalName:     arzDigitalNames[name],
		Symbol:        symbol,
		Price:         price,
		PriceUSD:      priceUSD,
		ChangePercent: change,
		MarketCap:     marketCap,
		LastUpdate:    batch,
	}, nil
}

// stripTomanMarker drops the "ت" unit marker some cells append.
func stripTomanMarker(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == 'ت' || r == ' ' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// text returns the trimmed text of the first node matching sel under root.
func text(root *goquery.Selection, sel string) string {
	return strings.TrimSpace(root.Find(sel).First().Text())
}
