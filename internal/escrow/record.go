package escrow

import "time"

// Role is derived per viewer by comparing addresses; it is never persisted.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleNone   Role = ""
)

// Item describes the listed asset. Immutable after creation.
type Item struct {
	Name    string `json:"name"`
	Image   string `json:"image"`
	AppID   string `json:"appId"`
	AssetID string `json:"assetId"`
}

// Record is the client-side read model of an escrow. The authoritative copy
// lives in the backend; this struct only mirrors it.
type Record struct {
	TransactionID string    `json:"transactionId"`
	Buyer         string    `json:"buyer"`
	Seller        string    `json:"seller"`
	Item          Item      `json:"item"`
	Amount        string    `json:"amount"`
	Status        Status    `json:"status"`
	SteamTradeURL string    `json:"steamTradeUrl,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	// Optional locked-payment/key pair persisted by the backend at deposit
	// time. When present, claim/cancel skip the on-chain scan entirely.
	LockedObjectID string `json:"lockedObjectId,omitempty"`
	KeyObjectID    string `json:"keyObjectId,omitempty"`
}

// RoleOf reports how the viewer relates to the escrow.
func (r Record) RoleOf(viewer string) Role {
	switch viewer {
	case "":
		return RoleNone
	case r.Buyer:
		return RoleBuyer
	case r.Seller:
		return RoleSeller
	}
	return RoleNone
}
