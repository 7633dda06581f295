package steam

import "encoding/json"

// DefaultContextID is the Steam inventory context used when the caller does
// not supply one. Context 2 holds tradable community items for most games.
const DefaultContextID = "2"

// InventoryAsset is a single entry in a Steam inventory payload. Only the
// identifiers needed for counting are decoded.
type InventoryAsset struct {
	AssetID    string `json:"assetid"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount"`
}

// InventoryPayload mirrors the proxied Steam inventory response shape.
type InventoryPayload struct {
	Assets  []InventoryAsset `json:"assets"`
	Success int              `json:"success"`
}

// CountMatching returns how many inventory entries match the given class id.
// A snapshot has no persistent identity; callers compare counts taken before
// and after a trade to detect whether the asset moved.
func CountMatching(payload InventoryPayload, classID string) int {
	n := 0
	for _, a := range payload.Assets {
		if a.ClassID == classID {
			n++
		}
	}
	return n
}

// DecodeInventory parses a raw inventory response body.
func DecodeInventory(raw []byte) (InventoryPayload, error) {
	var payload InventoryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return InventoryPayload{}, err
	}
	return payload, nil
}
