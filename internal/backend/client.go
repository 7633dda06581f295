package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skinvault/internal/escrow"
	"skinvault/internal/steam"
)

const (
	// LocalOrigin serves local development; ProductionOrigin everything else.
	LocalOrigin      = "http://localhost:8080"
	ProductionOrigin = "https://api.skinvault.exchange"

	defaultTimeout = 15 * time.Second
)

// ResolveOrigin picks the backend origin for the given environment name.
func ResolveOrigin(env string) string {
	if strings.EqualFold(env, "local") || strings.EqualFold(env, "development") {
		return LocalOrigin
	}
	return ProductionOrigin
}

// Client implements escrow.Gateway over HTTP.
type Client struct {
	origin string
	http   *http.Client
}

var _ escrow.Gateway = (*Client)(nil)

// NewClient builds a gateway client against the given origin. An empty
// origin falls back to the production one.
func NewClient(origin string) *Client {
	if origin == "" {
		origin = ProductionOrigin
	}
	return &Client{
		origin: strings.TrimRight(origin, "/"),
		http:   &http.Client{Timeout: defaultTimeout},
	}
}

// endpoint joins the origin and path with exactly one slash between them.
func (c *Client) endpoint(path string) string {
	return c.origin + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) LinkAccount(ctx context.Context, address, steamID string) error {
	status, _, err := c.post(ctx, "/user/add", map[string]string{
		"address": address,
		"steamID": steamID,
	})
	if err != nil {
		return err
	}
	// 409 means the pair is already linked, which is fine.
	if status != http.StatusOK && status != http.StatusConflict {
		return fmt.Errorf("link account: unexpected status %d", status)
	}
	return nil
}

func (c *Client) LinkedSteamID(ctx context.Context, address string) (string, error) {
	status, body, err := c.post(ctx, "/user/get_steamid", map[string]string{"address": address})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("get steam id: unexpected status %d", status)
	}
	var resp struct {
		SteamID string `json:"steamID"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode steam id response: %w", err)
	}
	return resp.SteamID, nil
}

func (c *Client) InventoryCount(ctx context.Context, steamID, appID, contextID, classID string) (int, error) {
	if contextID == "" {
		contextID = steam.DefaultContextID
	}
	query := url.Values{}
	query.Set("appid", appID)
	query.Set("contextid", contextID)
	path := fmt.Sprintf("/steam/inventory/%s?%s", url.PathEscape(steamID), query.Encode())

	status, body, err := c.get(ctx, path)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("inventory fetch: unexpected status %d", status)
	}
	payload, err := steam.DecodeInventory(body)
	if err != nil {
		return 0, fmt.Errorf("decode inventory payload: %w", err)
	}
	return steam.CountMatching(payload, classID), nil
}

func (c *Client) VerifyTransfer(ctx context.Context, escrowID string) (*escrow.VerifyTransferResult, error) {
	status, body, err := c.get(ctx, "/escrow/"+url.PathEscape(escrowID)+"/verify-transfer")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("verify transfer: unexpected status %d", status)
	}
	var result escrow.VerifyTransferResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode verification response: %w", err)
	}
	return &result, nil
}

func (c *Client) CheckInventory(ctx context.Context, escrowID string) (*escrow.InventoryStatus, error) {
	status, body, err := c.post(ctx, "/escrow/check-inventory", map[string]string{"escrowId": escrowID})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("check inventory: unexpected status %d", status)
	}
	var result escrow.InventoryStatus
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode inventory status: %w", err)
	}
	return &result, nil
}

func (c *Client) UploadAdvisory(ctx context.Context, data any, epochs int) (string, error) {
	status, body, err := c.post(ctx, "/walrus/upload-proxy", map[string]any{
		"data":   data,
		"epochs": epochs,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("advisory upload: unexpected status %d", status)
	}
	var resp struct {
		BlobID string `json:"blobId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode advisory upload response: %w", err)
	}
	if resp.BlobID == "" {
		return "", fmt.Errorf("advisory upload returned empty blob id")
	}
	return resp.BlobID, nil
}

func (c *Client) GetEscrow(ctx context.Context, escrowID string) (*escrow.Record, error) {
	status, body, err := c.get(ctx, "/escrow/"+url.PathEscape(escrowID))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("escrow %s not found", escrowID)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get escrow: unexpected status %d", status)
	}
	var record escrow.Record
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode escrow record: %w", err)
	}
	return &record, nil
}

func (c *Client) ListEscrows(ctx context.Context, address string) ([]escrow.Record, error) {
	status, body, err := c.get(ctx, "/escrow?address="+url.QueryEscape(address))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list escrows: unexpected status %d", status)
	}
	var records []escrow.Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode escrow list: %w", err)
	}
	return records, nil
}

func (c *Client) CreateEscrowRecord(ctx context.Context, record escrow.Record) error {
	status, _, err := c.post(ctx, "/escrow", record)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("create escrow record: unexpected status %d", status)
	}
	return nil
}

func (c *Client) Listings(ctx context.Context) ([]escrow.Listing, error) {
	status, body, err := c.get(ctx, "/marketplace/listings")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch listings: unexpected status %d", status)
	}
	var listings []escrow.Listing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	return listings, nil
}

func (c *Client) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return 0, nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
