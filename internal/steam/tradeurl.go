package steam

import (
	"errors"
	"regexp"
)

// Trade offer links must point at the fixed Steam host and carry both the
// numeric partner id and the offer token.
var tradeURLPattern = regexp.MustCompile(`^https://steamcommunity\.com/tradeoffer/new/\?partner=\d+&token=[A-Za-z0-9_-]+$`)

var ErrInvalidTradeURL = errors.New("invalid trade offer URL: expected https://steamcommunity.com/tradeoffer/new/?partner=<digits>&token=<token>")

// ValidateTradeURL checks a trade-handoff URL against the strict offer-link
// format. It performs no network I/O.
func ValidateTradeURL(raw string) error {
	if !tradeURLPattern.MatchString(raw) {
		return ErrInvalidTradeURL
	}
	return nil
}
