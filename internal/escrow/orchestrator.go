package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"skinvault/internal/chain"
	"skinvault/internal/session"
	"skinvault/internal/steam"
)

const contractModule = "steam_escrow"

var (
	// ErrTransferCompleted distinguishes a cancel attempt against an escrow
	// whose asset transfer already happened. Callers match it with errors.Is
	// and re-fetch the record instead of showing a failure.
	ErrTransferCompleted = errors.New("transfer has already occurred")

	// ErrCannotCancel covers every other backend refusal to cancel.
	ErrCannotCancel = errors.New("cannot cancel at this time")

	// ErrOperationInFlight rejects a concurrent duplicate of an operation
	// already running for the same escrow.
	ErrOperationInFlight = errors.New("operation already in progress for this escrow")

	// ErrTransferNotVerified rejects a claim the backend has not confirmed.
	ErrTransferNotVerified = errors.New("asset transfer not verified")

	// ErrInvalidParams marks caller input rejected before any network call.
	ErrInvalidParams = errors.New("invalid parameters")
)

// PairLocator finds the locked-payment/key pair for an address. Satisfied by
// chain.Locator.
type PairLocator interface {
	LocateLockedPair(ctx context.Context, address, packageID string) (chain.LockedPair, error)
}

// Config carries the on-chain package identity and advisory storage policy.
type Config struct {
	PackageID      string
	AdvisoryEpochs int
}

// Orchestrator sequences verification, object discovery and transaction
// submission for the escrow lifecycle. No transaction is submitted without a
// passing off-chain precondition check, and no state is read from ambient
// scope: every call takes an explicit session.
type Orchestrator struct {
	backend Gateway
	locator PairLocator
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewOrchestrator wires the orchestrator. A nil logger falls back to the
// default slog logger.
func NewOrchestrator(gw Gateway, locator PairLocator, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.AdvisoryEpochs <= 0 {
		cfg.AdvisoryEpochs = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		backend:  gw,
		locator:  locator,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

func (o *Orchestrator) target(entry string) string {
	return fmt.Sprintf("%s::%s::%s", o.cfg.PackageID, contractModule, entry)
}

// begin registers an in-flight operation for an escrow, rejecting duplicates.
func (o *Orchestrator) begin(escrowID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[escrowID]; busy {
		return fmt.Errorf("%w: %s", ErrOperationInFlight, escrowID)
	}
	o.inflight[escrowID] = struct{}{}
	return nil
}

func (o *Orchestrator) end(escrowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, escrowID)
}

// CreateParams describes a new escrow.
type CreateParams struct {
	Buyer  string
	Seller string

	AssetID     string
	AssetName   string
	AssetAmount uint64
	ClassID     string
	InstanceID  string
	AppID       string
	ContextID   string

	TradeURL     string
	PriceDisplay string
	Description  string

	// Optional Steam account ids for each side; counting is skipped for a
	// side that does not supply one.
	SellerSteamID string
	BuyerSteamID  string
}

// CreateResult is the submission outcome plus the advisory storage id and
// any non-blocking warnings accumulated by best-effort steps.
type CreateResult struct {
	Execution          *chain.ExecutionResult
	AdvisoryID         string
	PriceMist          uint64
	InitialSellerCount int
	InitialBuyerCount  int
	Warnings           []string
}

// Per-side fallbacks when an inventory count cannot be obtained: the seller
// is assumed to hold the listed item, the buyer is assumed not to.
const (
	defaultSellerCount = 1
	defaultBuyerCount  = 0
)

// CreateEscrow validates inputs, gathers best-effort initial inventory
// counts, archives an advisory description, and submits the combined
// create/deposit/transfer transaction.
func (o *Orchestrator) CreateEscrow(ctx context.Context, sess session.Session, p CreateParams) (*CreateResult, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if err := validateCreateParams(p); err != nil {
		return nil, err
	}
	if err := steam.ValidateTradeURL(p.TradeURL); err != nil {
		return nil, err
	}
	priceMist, err := PriceToMist(p.PriceDisplay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if err := o.begin(createGuardKey(p)); err != nil {
		return nil, err
	}
	defer o.end(createGuardKey(p))

	result := &CreateResult{PriceMist: priceMist}

	sellerSteamID := o.resolveSteamID(ctx, p.SellerSteamID, p.Seller)
	buyerSteamID := o.resolveSteamID(ctx, p.BuyerSteamID, p.Buyer)
	result.InitialSellerCount = o.countSide(ctx, p, sellerSteamID, "seller", defaultSellerCount, result)
	result.InitialBuyerCount = o.countSide(ctx, p, buyerSteamID, "buyer", defaultBuyerCount, result)

	result.AdvisoryID = o.archiveDescription(ctx, p, result)

	b := chain.NewTxBuilder(sess.Address)
	escrowObj := b.MoveCall(o.target("create_escrow"),
		b.Pure(p.Buyer),
		b.Pure(p.Seller),
		b.Pure([]byte(p.AssetID)),
		b.Pure([]byte(p.AssetName)),
		b.Pure(p.AssetAmount),
		b.Pure([]byte(p.TradeURL)),
		b.Pure(clampCount(result.InitialSellerCount)),
		b.Pure(clampCount(result.InitialBuyerCount)),
		b.Pure(priceMist),
	)
	payment := b.SplitFromGas(priceMist)
	lockedAndKey := b.MoveCall(o.target("deposit"), escrowObj, payment)
	b.TransferObjects(p.Seller, escrowObj)
	b.TransferObjects(sess.Address, lockedAndKey)

	exec, err := sess.Signer.SignAndExecute(ctx, b.Transaction())
	if err != nil {
		return nil, fmt.Errorf("submit create transaction: %w", err)
	}
	result.Execution = exec

	o.logger.Info("escrow created",
		"digest", exec.Digest,
		"buyer", p.Buyer,
		"seller", p.Seller,
		"priceMist", priceMist,
		"advisoryId", result.AdvisoryID,
	)
	return result, nil
}

// resolveSteamID falls back to the account linked to the address when no
// explicit Steam id was supplied. Lookup failure just means no id, which in
// turn means the side's count defaults.
func (o *Orchestrator) resolveSteamID(ctx context.Context, explicit, address string) string {
	if explicit != "" {
		return explicit
	}
	steamID, err := o.backend.LinkedSteamID(ctx, address)
	if err != nil {
		o.logger.Debug("linked steam id lookup failed", "address", address, "err", err)
		return ""
	}
	return steamID
}

// countSide fetches one party's current item count. Failures never abort the
// create flow: the side's default is used and a warning is attached so the
// caller can surface it without treating the operation as failed.
func (o *Orchestrator) countSide(ctx context.Context, p CreateParams, steamID, side string, fallback int, result *CreateResult) int {
	if steamID == "" {
		return fallback
	}
	count, err := o.backend.InventoryCount(ctx, steamID, p.AppID, p.ContextID, p.ClassID)
	if err != nil {
		o.logger.Warn("inventory count degraded to default", "side", side, "err", err)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s inventory count unavailable, assuming %d: %v", side, fallback, err))
		return fallback
	}
	return count
}

// archiveDescription uploads the full escrow description to advisory
// storage. Persistence is advisory: on failure a locally generated id keeps
// the flow moving.
func (o *Orchestrator) archiveDescription(ctx context.Context, p CreateParams, result *CreateResult) string {
	description := map[string]any{
		"buyer":              p.Buyer,
		"seller":             p.Seller,
		"assetId":            p.AssetID,
		"assetName":          p.AssetName,
		"assetAmount":        p.AssetAmount,
		"classId":            p.ClassID,
		"instanceId":         p.InstanceID,
		"appId":              p.AppID,
		"tradeUrl":           p.TradeURL,
		"price":              p.PriceDisplay,
		"description":        p.Description,
		"initialSellerCount": result.InitialSellerCount,
		"initialBuyerCount":  result.InitialBuyerCount,
		"createdAt":          o.now().UTC().Format(time.RFC3339),
	}
	blobID, err := o.backend.UploadAdvisory(ctx, description, o.cfg.AdvisoryEpochs)
	if err != nil {
		fallback := fmt.Sprintf("local-%d-%s", o.now().UnixNano(), shortSuffix())
		o.logger.Warn("advisory upload failed, using local id", "fallback", fallback, "err", err)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("escrow description not archived, using local id %s: %v", fallback, err))
		return fallback
	}
	return blobID
}

// ClaimParams identifies the escrow being claimed.
type ClaimParams struct {
	EscrowID       string
	EscrowObjectID string
}

// ClaimResult is the submission outcome plus the backend verification that
// authorized it.
type ClaimResult struct {
	Execution    *chain.ExecutionResult
	Verification Verification
}

// ClaimPayment releases the locked payment to the seller once the backend
// confirms the asset transfer happened. No transaction is built before that
// confirmation.
func (o *Orchestrator) ClaimPayment(ctx context.Context, sess session.Session, p ClaimParams) (*ClaimResult, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if p.EscrowID == "" || p.EscrowObjectID == "" {
		return nil, fmt.Errorf("%w: escrow id and escrow object id are required", ErrInvalidParams)
	}
	if err := o.begin(p.EscrowID); err != nil {
		return nil, err
	}
	defer o.end(p.EscrowID)

	verification, err := o.backend.VerifyTransfer(ctx, p.EscrowID)
	if err != nil {
		return nil, fmt.Errorf("verify transfer: %w", err)
	}
	if !verification.Success || !verification.Verification.IsTransferred {
		msg := verification.Verification.Message
		if msg == "" {
			msg = "backend has not confirmed the asset transfer"
		}
		return nil, fmt.Errorf("%w: %s", ErrTransferNotVerified, msg)
	}

	b := chain.NewTxBuilder(sess.Address)
	payment := b.MoveCall(o.target("claim"), b.Object(p.EscrowObjectID), b.Pure(true))
	b.TransferObjects(sess.Address, payment)

	exec, err := sess.Signer.SignAndExecute(ctx, b.Transaction())
	if err != nil {
		return nil, fmt.Errorf("submit claim transaction: %w", err)
	}

	o.logger.Info("escrow claimed", "escrowId", p.EscrowID, "digest", exec.Digest)
	return &ClaimResult{Execution: exec, Verification: verification.Verification}, nil
}

// CancelParams identifies the escrow being cancelled. The locked/key pair
// may be supplied explicitly (when the backend recorded it at deposit time);
// otherwise the locator scans the caller's owned objects for it.
type CancelParams struct {
	EscrowID       string
	EscrowObjectID string
	LockedObjectID string
	KeyObjectID    string
}

// CancelResult is the submission outcome plus the inventory check that
// allowed it.
type CancelResult struct {
	Execution *chain.ExecutionResult
	Inventory InventoryStatus
	Message   string
}

// CancelEscrow refunds the buyer when the backend confirms no transfer has
// occurred. A detected transfer aborts with ErrTransferCompleted so callers
// can re-fetch and treat the escrow as completed instead.
func (o *Orchestrator) CancelEscrow(ctx context.Context, sess session.Session, p CancelParams) (*CancelResult, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if p.EscrowID == "" || p.EscrowObjectID == "" {
		return nil, fmt.Errorf("%w: escrow id and escrow object id are required", ErrInvalidParams)
	}
	if err := o.begin(p.EscrowID); err != nil {
		return nil, err
	}
	defer o.end(p.EscrowID)

	status, err := o.backend.CheckInventory(ctx, p.EscrowID)
	if err != nil {
		return nil, fmt.Errorf("check inventory: %w", err)
	}
	if status.HasTransferOccurred {
		return nil, fmt.Errorf("%w: %s", ErrTransferCompleted, status.Message)
	}
	if !status.CanCancel {
		if status.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrCannotCancel, status.Message)
		}
		return nil, ErrCannotCancel
	}

	lockedID, keyID := p.LockedObjectID, p.KeyObjectID
	if lockedID == "" || keyID == "" {
		pair, err := o.locator.LocateLockedPair(ctx, sess.Address, o.cfg.PackageID)
		if err != nil {
			return nil, err
		}
		lockedID, keyID = pair.Locked.ID, pair.Key.ID
	}

	b := chain.NewTxBuilder(sess.Address)
	refund := b.MoveCall(o.target("cancel"),
		b.Object(p.EscrowObjectID),
		b.Object(lockedID),
		b.Object(keyID),
		b.Pure(false),
	)
	b.TransferObjects(sess.Address, refund)

	exec, err := sess.Signer.SignAndExecute(ctx, b.Transaction())
	if err != nil {
		return nil, fmt.Errorf("submit cancel transaction: %w", err)
	}

	o.logger.Info("escrow cancelled", "escrowId", p.EscrowID, "digest", exec.Digest)
	return &CancelResult{
		Execution: exec,
		Inventory: *status,
		Message:   "escrow cancelled and payment refunded",
	}, nil
}

func validateCreateParams(p CreateParams) error {
	if p.Buyer == "" {
		return fmt.Errorf("%w: buyer address is required", ErrInvalidParams)
	}
	if p.Seller == "" {
		return fmt.Errorf("%w: seller address is required", ErrInvalidParams)
	}
	if p.AssetID == "" {
		return fmt.Errorf("%w: asset id is required", ErrInvalidParams)
	}
	if p.AssetName == "" {
		return fmt.Errorf("%w: asset name is required", ErrInvalidParams)
	}
	if strings.TrimSpace(p.PriceDisplay) == "" {
		return fmt.Errorf("%w: price is required", ErrInvalidParams)
	}
	return nil
}

func clampCount(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}

func createGuardKey(p CreateParams) string {
	return "create:" + p.Seller + ":" + p.AssetID
}

func shortSuffix() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
