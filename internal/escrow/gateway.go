package escrow

import "context"

// Verification is the transfer-verification payload for a claim precheck.
type Verification struct {
	IsTransferred bool   `json:"isTransferred"`
	Message       string `json:"message,omitempty"`
	CheckedAt     int64  `json:"checkedAt,omitempty"`
}

// VerifyTransferResult wraps the verify-transfer endpoint response.
type VerifyTransferResult struct {
	Success      bool         `json:"success"`
	Verification Verification `json:"verification"`
}

// InventoryStatus is the cancel precheck response.
type InventoryStatus struct {
	CanCancel           bool   `json:"canCancel"`
	HasTransferOccurred bool   `json:"hasTransferOccurred"`
	Message             string `json:"message,omitempty"`
	CurrentSellerCount  int    `json:"currentSellerCount"`
	CurrentBuyerCount   int    `json:"currentBuyerCount"`
	InitialSellerCount  int    `json:"initialSellerCount"`
	InitialBuyerCount   int    `json:"initialBuyerCount"`
}

// Listing is one marketplace entry.
type Listing struct {
	ID       string `json:"id"`
	Seller   string `json:"seller"`
	Item     Item   `json:"item"`
	Amount   string `json:"amount"`
	ListedAt int64  `json:"listedAt"`
}

// Gateway is the backend surface the orchestrator and server depend on. The
// backend implementation itself is an external collaborator; only these call
// shapes matter here.
type Gateway interface {
	LinkAccount(ctx context.Context, address, steamID string) error
	LinkedSteamID(ctx context.Context, address string) (string, error)
	InventoryCount(ctx context.Context, steamID, appID, contextID, classID string) (int, error)
	VerifyTransfer(ctx context.Context, escrowID string) (*VerifyTransferResult, error)
	CheckInventory(ctx context.Context, escrowID string) (*InventoryStatus, error)
	UploadAdvisory(ctx context.Context, data any, epochs int) (string, error)
	GetEscrow(ctx context.Context, escrowID string) (*Record, error)
	ListEscrows(ctx context.Context, address string) ([]Record, error)
	CreateEscrowRecord(ctx context.Context, record Record) error
	Listings(ctx context.Context) ([]Listing, error)
}
