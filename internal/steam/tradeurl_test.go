package steam

import (
	"errors"
	"testing"
)

func TestValidateTradeURL_Accepts(t *testing.T) {
	valid := []string{
		"https://steamcommunity.com/tradeoffer/new/?partner=123456789&token=AbCdEf12",
		"https://steamcommunity.com/tradeoffer/new/?partner=1&token=a",
		"https://steamcommunity.com/tradeoffer/new/?partner=84571&token=x-Y_9z",
	}
	for _, u := range valid {
		if err := ValidateTradeURL(u); err != nil {
			t.Fatalf("expected %q to validate, got %v", u, err)
		}
	}
}

func TestValidateTradeURL_Rejects(t *testing.T) {
	invalid := []string{
		"",
		"http://steamcommunity.com/tradeoffer/new/?partner=1&token=a",
		"https://steamcommunity.com/tradeoffer/new/?partner=abc&token=a",
		"https://steamcommunity.com/tradeoffer/new/?partner=1",
		"https://steamcommunity.com/tradeoffer/new/?token=a&partner=1",
		"https://example.com/tradeoffer/new/?partner=1&token=a",
		"https://steamcommunity.com/tradeoffer/new/?partner=1&token=a!b",
		"https://steamcommunity.com/tradeoffer/new/?partner=1&token=a&extra=1",
	}
	for _, u := range invalid {
		err := ValidateTradeURL(u)
		if err == nil {
			t.Fatalf("expected %q to be rejected", u)
		}
		if !errors.Is(err, ErrInvalidTradeURL) {
			t.Fatalf("expected ErrInvalidTradeURL for %q, got %v", u, err)
		}
	}
}

func TestCountMatching(t *testing.T) {
	payload := InventoryPayload{Assets: []InventoryAsset{
		{AssetID: "1", ClassID: "310776543"},
		{AssetID: "2", ClassID: "310776543"},
		{AssetID: "3", ClassID: "999"},
	}}
	if got := CountMatching(payload, "310776543"); got != 2 {
		t.Fatalf("expected 2 matches, got %d", got)
	}
	if got := CountMatching(payload, "missing"); got != 0 {
		t.Fatalf("expected 0 matches, got %d", got)
	}
}
