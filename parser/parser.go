package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-price-sync/models"
)

var (
	productPathPattern = regexp.MustCompile(`-p(\d+)\.html$`)
	rawProductPattern  = regexp.MustCompile(`-p(\d+)\.html(?:[?#]|$)`)
	rawSpidPattern     = regexp.MustCompile(`[?&]spid=(\d+)`)
	leadingDigits      = regexp.MustCompile(`^\d+`)
)

// hotDealDiscountPercent is the discount at which an unbadged product counts as a hot deal.
const hotDealDiscountPercent = 30.0

// ExtractVendorID derives the vendor product id from a catalog URL.
// The canonical "-p<digits>.html" path wins over the "spid" query parameter,
// whose leading digits are taken. URLs that do not parse are matched as text.
func ExtractVendorID(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return extractFromText(rawURL)
	}

	if m := productPathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}

	if id := leadingDigits.FindString(u.Query().Get("spid")); id != "" {
		return id, true
	}
	return "", false
}

func extractFromText(raw string) (string, bool) {
	if m := rawProductPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	if m := rawSpidPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	return "", false
}

// ClassifyDeal maps badge codes and the price pair to a deal type.
// Badges are scanned in order and the first match wins; the discount
// heuristic only applies when no badge matched.
func ClassifyDeal(price, originalPrice float64, badges []string) models.DealType {
	for _, badge := range badges {
		code := strings.ToUpper(badge)
		switch {
		case strings.Contains(code, "FLASH"):
			return models.DealFlashSale
		case strings.Contains(code, "HOT"), strings.Contains(code, "DEAL"):
			return models.DealHot
		case strings.Contains(code, "TREND"):
			return models.DealTrending
		}
	}

	if DiscountPercent(price, originalPrice) >= hotDealDiscountPercent {
		return models.DealHot
	}
	return models.DealNormal
}

// DiscountPercent returns how far price sits below originalPrice, or 0
// when there is no discount.
func DiscountPercent(price, originalPrice float64) float64 {
	if originalPrice <= 0 || price < 0 || price >= originalPrice {
		return 0
	}
	return (originalPrice - price) * 100 / originalPrice
}

// ValidateObservation ensures the fetched observation is usable for the history.
func ValidateObservation(o *models.PriceObservation) error {
	if o == nil {
		return fmt.Errorf("observation is nil")
	}
	if o.Price < 0 {
		return fmt.Errorf("negative price %v", o.Price)
	}
	if o.OriginalPrice < o.Price {
		return fmt.Errorf("original price %v below price %v", o.OriginalPrice, o.Price)
	}
	if strings.TrimSpace(o.Currency) == "" {
		return fmt.Errorf("observation missing currency")
	}
	switch o.DealType {
	case models.DealNormal, models.DealFlashSale, models.DealHot, models.DealTrending:
	default:
		return fmt.Errorf("unknown deal type %q", o.DealType)
	}
	return nil
}
