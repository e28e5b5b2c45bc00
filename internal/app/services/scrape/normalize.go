package scrape

import (
	"fmt"
	"strconv"
	"strings"
)

// persianDigits maps Persian-script digit glyphs to their ASCII values.
// Arabic-Indic glyphs appear on some source pages as well, so both sets are
// translated.
var persianDigits = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// asciiDigits translates locale digit glyphs to ASCII.
func asciiDigits(s string) string {
	return persianDigits.Replace(s)
}

// cleanNumber normalizes a numeric cell: locale digits to ASCII, thousands
// separators dropped, surrounding whitespace trimmed.
func cleanNumber(s string) string {
	s = asciiDigits(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}

// scaleInteger rescales an integer price string by a fixed factor, used when
// a source quotes a smaller denomination than the canonical unit (toman
// pages are multiplied by 10 to yield rial).
func scaleInteger(s string, factor int64) (string, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse integer price %q: %w", s, err)
	}
	return strconv.FormatInt(v*factor, 10), nil
}

// stripTitleNoise removes known suffix noise from an instrument title so the
// allow-list match and the dedup key see the canonical form.
func stripTitleNoise(title string) string {
	title = strings.TrimSpace(title)
	if strings.Contains(title, "750") {
		title = strings.ReplaceAll(title, " / 750", "")
	}
	return title
}

// splitChange splits a TGJU change cell of the form "(X%) Y" into the raw
// percentage (parens kept) and the amount (separators dropped). Cells without
// the closing paren normalize to a zero change.
func splitChange(text string) (percent, amount string) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ")"); i >= 0 {
		percent = text[:i+1]
		amount = cleanNumber(text[i+1:])
		return percent, amount
	}
	return "0%", "0"
}

// trimPercent strips the leading "(" and trailing "%)" from a raw percentage
// and re-appends the percent sign: "(0.07%)" becomes "0.07%". Runs on runes
// so locale glyphs cannot split mid-character.
func trimPercent(raw string) string {
	r := []rune(asciiDigits(raw))
	if len(r) > 3 && r[0] == '(' {
		r = r[1 : len(r)-2]
	}
	s := strings.TrimSuffix(strings.TrimSpace(string(r)), "%")
	return s + "%"
}

// applySign forces the sign obtained from the structural cue onto a value,
// discarding whatever sign characters the raw text carried. The cue is
// authoritative; the text sign is not trusted.
func applySign(negative bool, s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-+−")
	if s == "" {
		return s
	}
	if negative {
		return "-" + s
	}
	return s
}
