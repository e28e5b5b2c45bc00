package scrape

import (
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
)

// TGJU publishes Iranian market tables for gold, coins and currencies. All
// three categories share the row structure; only the URL and the allow-list
// differ.

const tgjuReadySelector = "tr[data-market-row]"

var tgjuGoldTitles = map[string]struct{}{
	"مثقال طلا":    {},
	"طلای 18 عیار": {},
	"طلای ۲۴ عیار": {},
	"آبشده نقدی":   {},
	"حباب آبشده":   {},
}

var tgjuCoinTitles = map[string]struct{}{
	"ربع سکه":        {},
	"نیم سکه":        {},
	"سکه امامی":      {},
	"سکه بهار آزادی": {},
}

var tgjuCurrencyTitles = map[string]struct{}{
	"دلار":        {},
	"یورو":        {},
	"یوان چین":    {},
	"درهم امارات": {},
	"پوند انگلیس": {},
	"لیر ترکیه":   {},
	"روبل روسیه":  {},
}

// TGJUPlan returns the extraction plan for one TGJU category. Supported
// categories are gold, coin and currency.
func TGJUPlan(category market.Category) (Plan, error) {
	var (
		url    string
		titles map[string]struct{}
	)
	switch category {
	case market.CategoryGold:
		url, titles = "https://www.tgju.org/gold-chart", tgjuGoldTitles
	case market.CategoryCoin:
		url, titles = "https://www.tgju.org/coin", tgjuCoinTitles
	case market.CategoryCurrency:
		url, titles = "https://www.tgju.org/currency", tgjuCurrencyTitles
	default:
		return Plan{}, fmt.Errorf("tgju: unsupported category %q", category)
	}

	return Plan{
		Source:        market.SourceTGJU,
		Category:      category,
		URL:           url,
		ReadySelector: tgjuReadySelector,
		RowSelector:   tgjuReadySelector,
		Settle:        5 * time.Second,
		Relevant: func(row *goquery.Selection) bool {
			title := stripTitleNoise(row.Find("th").First().Text())
			_, ok := titles[title]
			return ok
		},
		MapRow: mapTGJURow,
	}, nil
}

func mapTGJURow(row *goquery.Selection, batch time.Time) (market.PriceRecord, error) {
	th := row.Find("th").First()
	if th.Length() == 0 {
		return market.PriceRecord{}, fmt.Errorf("tgju row: missing title cell")
	}
	title := stripTitleNoise(th.Text())

	cells := row.Find("td")
	if cells.Length() < 2 {
		return market.PriceRecord{}, fmt.Errorf("tgju row %q: expected price and change cells, got %d", title, cells.Length())
	}

	price := cleanNumber(cells.Eq(0).Text())
	if price == "" {
		return market.PriceRecord{}, fmt.Errorf("tgju row %q: empty price cell", title)
	}

	changeCell := cells.Eq(1)
	percentRaw, amount := splitChange(changeCell.Text())

	// The span.low marker is the authoritative negative cue; the textual
	// sign inside the cell is unreliable.
	negative := changeCell.Find("span.low").Length() > 0

	return market.PriceRecord{
		Title:         title,
		Price:         price,
		ChangePercent: applySign(negative, trimPercent(percentRaw)),
		ChangeAmount:  applySign(negative, amount),
		LastUpdate:    batch,
	}, nil
}
