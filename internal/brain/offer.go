package brain

import (
	"regexp"
	"strconv"
	"strings"
)

// minOfferValue filters out quantities and other small numbers ("2 lamps")
// that are never plausible price offers in this catalog's currency range.
const minOfferValue = 100

var numberRe = regexp.MustCompile(`\d[\d,.]*`)

// extractOffer pulls a named price out of a customer message. Thousands
// separators (both "," and ".") are tolerated; a trailing "k" multiplies by a
// thousand. When several numbers appear the last one wins, matching how
// customers phrase counter-offers ("instead of 25000 I'll pay 20000").
func extractOffer(text string) (float64, bool) {
	lower := strings.ToLower(text)
	matches := numberRe.FindAllStringIndex(lower, -1)

	var best float64
	var found bool
	for _, loc := range matches {
		raw := strings.Trim(lower[loc[0]:loc[1]], ",.")
		v, err := parseAmount(raw)
		if err != nil {
			continue
		}
		if loc[1] < len(lower) && lower[loc[1]] == 'k' {
			v *= 1000
		}
		if v < minOfferValue {
			continue
		}
		best = v
		found = true
	}
	return best, found
}

// parseAmount parses a number whose "," and "." are thousands separators,
// except that a trailing group of one or two digits is a decimal fraction:
// "21.500" is 21500 but "22000.50" is 22000.5.
func parseAmount(raw string) (float64, error) {
	if i := strings.LastIndexAny(raw, ",."); i >= 0 {
		frac := raw[i+1:]
		if len(frac) >= 1 && len(frac) <= 2 {
			whole := strings.NewReplacer(",", "", ".", "").Replace(raw[:i])
			return strconv.ParseFloat(whole+"."+frac, 64)
		}
	}
	return strconv.ParseFloat(strings.NewReplacer(",", "", ".", "").Replace(raw), 64)
}

var discountPhrases = []string{
	"discount",
	"cheaper",
	"too expensive",
	"expensive",
	"lower price",
	"best price",
	"last price",
	"final price",
	"can you do",
	"reduce",
	"deal",
}

// wantsDiscount reports whether the message reads as a haggling attempt even
// without a named number.
func wantsDiscount(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range discountPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
