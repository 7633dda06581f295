package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"skinvault/internal/hmacauth"
)

var (
	apiBase           = envOr("SKINVAULT_API", "http://localhost:3000")
	hmacSecret        = os.Getenv("SKINVAULT_HMAC_SECRET")
	httpClient        = &http.Client{Timeout: 30 * time.Second}
	newIdempotencyKey = uuid.NewString
	escrowNow         = time.Now
)

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}

	switch args[0] {
	case "create":
		return runEscrowCreate(args[1:], stdout, stderr)
	case "claim":
		return runEscrowClaim(args[1:], stdout, stderr)
	case "cancel":
		return runEscrowCancel(args[1:], stdout, stderr)
	case "status":
		return runEscrowStatus(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown escrow subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
}

func runEscrowCreate(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow create", stderr)
	var (
		buyer       string
		seller      string
		assetID     string
		assetName   string
		amountStr   string
		classID     string
		appID       string
		contextID   string
		tradeURL    string
		price       string
		description string
		sellerSteam string
		buyerSteam  string
	)
	fs.StringVar(&buyer, "buyer", "", "buyer wallet address")
	fs.StringVar(&seller, "seller", "", "seller wallet address")
	fs.StringVar(&assetID, "asset-id", "", "steam asset id of the listed item")
	fs.StringVar(&assetName, "asset-name", "", "display name of the item")
	fs.StringVar(&amountStr, "asset-amount", "1", "number of units")
	fs.StringVar(&classID, "class-id", "", "steam class id used for inventory counting")
	fs.StringVar(&appID, "app-id", "", "steam app id")
	fs.StringVar(&contextID, "context-id", "", "steam inventory context id")
	fs.StringVar(&tradeURL, "trade-url", "", "buyer steam trade offer URL")
	fs.StringVar(&price, "price", "", "price in display units, e.g. 2.5")
	fs.StringVar(&description, "description", "", "optional listing description")
	fs.StringVar(&sellerSteam, "seller-steam", "", "optional seller steam id")
	fs.StringVar(&buyerSteam, "buyer-steam", "", "optional buyer steam id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if buyer == "" {
		return printEscrowErr(stderr, "--buyer is required")
	}
	if seller == "" {
		return printEscrowErr(stderr, "--seller is required")
	}
	if assetID == "" {
		return printEscrowErr(stderr, "--asset-id is required")
	}
	if assetName == "" {
		return printEscrowErr(stderr, "--asset-name is required")
	}
	if tradeURL == "" {
		return printEscrowErr(stderr, "--trade-url is required")
	}
	if price == "" {
		return printEscrowErr(stderr, "--price is required")
	}
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil || amount == 0 {
		return printEscrowErr(stderr, "--asset-amount must be a positive integer")
	}

	payload := map[string]any{
		"buyer":         buyer,
		"seller":        seller,
		"assetId":       assetID,
		"assetName":     assetName,
		"assetAmount":   amount,
		"classId":       classID,
		"appId":         appID,
		"contextId":     contextID,
		"tradeUrl":      tradeURL,
		"price":         price,
		"description":   description,
		"sellerSteamId": sellerSteam,
		"buyerSteamId":  buyerSteam,
	}
	return doMutation(stdout, stderr, "/api/v1/escrows", payload)
}

func runEscrowClaim(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow claim", stderr)
	var (
		id       string
		objectID string
	)
	fs.StringVar(&id, "id", "", "escrow record id")
	fs.StringVar(&objectID, "object", "", "on-chain escrow object id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == "" {
		return printEscrowErr(stderr, "--id is required")
	}
	if objectID == "" {
		return printEscrowErr(stderr, "--object is required")
	}
	payload := map[string]any{"escrowObjectId": objectID}
	return doMutation(stdout, stderr, "/api/v1/escrows/"+id+"/claim", payload)
}

func runEscrowCancel(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow cancel", stderr)
	var (
		id       string
		objectID string
		lockedID string
		keyID    string
	)
	fs.StringVar(&id, "id", "", "escrow record id")
	fs.StringVar(&objectID, "object", "", "on-chain escrow object id")
	fs.StringVar(&lockedID, "locked", "", "optional locked payment object id")
	fs.StringVar(&keyID, "key", "", "optional key object id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == "" {
		return printEscrowErr(stderr, "--id is required")
	}
	if objectID == "" {
		return printEscrowErr(stderr, "--object is required")
	}
	payload := map[string]any{
		"escrowObjectId": objectID,
		"lockedObjectId": lockedID,
		"keyObjectId":    keyID,
	}
	return doMutation(stdout, stderr, "/api/v1/escrows/"+id+"/cancel", payload)
}

func runEscrowStatus(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow status", stderr)
	var (
		id     string
		viewer string
	)
	fs.StringVar(&id, "id", "", "escrow record id")
	fs.StringVar(&viewer, "viewer", "", "optional wallet address for role derivation")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == "" && fs.NArg() == 1 {
		id = fs.Arg(0)
	}
	if id == "" {
		return printEscrowErr(stderr, "--id is required")
	}

	path := "/api/v1/escrows/" + id
	if viewer != "" {
		path += "?viewer=" + viewer
	}
	req, err := http.NewRequest(http.MethodGet, apiBase+path, nil)
	if err != nil {
		return printEscrowErr(stderr, err.Error())
	}
	return doRequest(stdout, stderr, req)
}

// doMutation POSTs a signed, idempotency-keyed request and prints the JSON
// response.
func doMutation(stdout, stderr io.Writer, path string, payload map[string]any) int {
	body, err := json.Marshal(payload)
	if err != nil {
		return printEscrowErr(stderr, err.Error())
	}
	req, err := http.NewRequest(http.MethodPost, apiBase+path, bytes.NewReader(body))
	if err != nil {
		return printEscrowErr(stderr, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", newIdempotencyKey())
	if hmacSecret != "" {
		ts := strconv.FormatInt(escrowNow().Unix(), 10)
		nonce := uuid.NewString()
		req.Header.Set("X-Request-Timestamp", ts)
		req.Header.Set("X-Request-Nonce", nonce)
		req.Header.Set("X-Request-Signature", hmacauth.Sign(hmacSecret, ts, nonce, body))
	}
	return doRequest(stdout, stderr, req)
}

func doRequest(stdout, stderr io.Writer, req *http.Request) int {
	resp, err := httpClient.Do(req)
	if err != nil {
		return printEscrowErr(stderr, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return printEscrowErr(stderr, err.Error())
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Code != "" {
				fmt.Fprintf(stderr, "Error: %s (%s)\n", apiErr.Error, apiErr.Code)
			} else {
				fmt.Fprintf(stderr, "Error: %s\n", apiErr.Error)
			}
			return 1
		}
		fmt.Fprintf(stderr, "Error: unexpected status %d\n", resp.StatusCode)
		return 1
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		fmt.Fprintln(stdout, string(raw))
		return 0
	}
	fmt.Fprintln(stdout, indented.String())
	return 0
}

func newEscrowFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, escrowUsage())
	}
	return fs
}

func printEscrowErr(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func escrowUsage() string {
	return strings.TrimSpace(`Usage:
  skinvault-cli escrow <command> [flags]

Commands:
  create  Create a new escrow for a listed item
  claim   Claim the locked payment after the item transfer
  cancel  Cancel an escrow and refund the buyer
  status  Fetch escrow details by id
`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
