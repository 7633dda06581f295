package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

const ownedObjectsPageSize = 50

// RPCClient talks JSON-RPC 2.0 to a fullnode. The underlying transport comes
// from go-ethereum's rpc package, which is protocol-agnostic above the
// JSON-RPC envelope.
type RPCClient struct {
	rpc *rpc.Client
}

// Dial connects to the fullnode RPC endpoint.
func Dial(ctx context.Context, url string) (*RPCClient, error) {
	if url == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	cli, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &RPCClient{rpc: cli}, nil
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

type ownedObjectEntry struct {
	Data *objectData `json:"data"`
}

type objectData struct {
	ObjectID string         `json:"objectId"`
	Version  string         `json:"version"`
	Digest   string         `json:"digest"`
	Type     string         `json:"type"`
	Content  *objectContent `json:"content"`
}

type objectContent struct {
	DataType string                     `json:"dataType"`
	Type     string                     `json:"type"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

type ownedObjectsPage struct {
	Data        []ownedObjectEntry `json:"data"`
	NextCursor  *string            `json:"nextCursor"`
	HasNextPage bool               `json:"hasNextPage"`
}

type objectResponse struct {
	Data *objectData `json:"data"`
}

// OwnedObjects scans every object owned by the address, following cursors
// until the node reports the final page. Type and content are requested so
// callers can classify without a second round-trip per object.
func (c *RPCClient) OwnedObjects(ctx context.Context, address string) ([]OwnedObject, error) {
	query := map[string]any{
		"options": map[string]bool{
			"showType":    true,
			"showContent": true,
		},
	}
	var (
		out    []OwnedObject
		cursor *string
	)
	for {
		var page ownedObjectsPage
		if err := c.rpc.CallContext(ctx, &page, "suix_getOwnedObjects", address, query, cursor, ownedObjectsPageSize); err != nil {
			return nil, fmt.Errorf("fetch owned objects for %s: %w", address, err)
		}
		for _, entry := range page.Data {
			if entry.Data == nil {
				continue
			}
			out = append(out, decodeObject(entry.Data))
		}
		if !page.HasNextPage || page.NextCursor == nil {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// ObjectFields fetches the full content of a single object and returns its
// raw field map.
func (c *RPCClient) ObjectFields(ctx context.Context, id string) (map[string]json.RawMessage, error) {
	var resp objectResponse
	opts := map[string]bool{"showType": true, "showContent": true}
	if err := c.rpc.CallContext(ctx, &resp, "sui_getObject", id, opts); err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", id, err)
	}
	if resp.Data == nil || resp.Data.Content == nil {
		return nil, fmt.Errorf("object %s has no content", id)
	}
	return resp.Data.Content.Fields, nil
}

// ExecuteTransaction submits signed transaction bytes to the node.
func (c *RPCClient) ExecuteTransaction(ctx context.Context, txBytes []byte, signature string) (*ExecutionResult, error) {
	var result ExecutionResult
	encoded := base64.StdEncoding.EncodeToString(txBytes)
	opts := map[string]bool{"showEffects": true}
	if err := c.rpc.CallContext(ctx, &result, "sui_executeTransactionBlock", encoded, []string{signature}, opts); err != nil {
		return nil, fmt.Errorf("execute transaction: %w", err)
	}
	if result.Status == "failure" {
		return &result, fmt.Errorf("transaction failed on-chain: %s", result.Error)
	}
	return &result, nil
}

// Ping verifies connectivity with a cheap read.
func (c *RPCClient) Ping(ctx context.Context) error {
	if c.rpc == nil {
		return fmt.Errorf("rpc client not configured")
	}
	var version json.RawMessage
	return c.rpc.CallContext(ctx, &version, "rpc.discover")
}

func decodeObject(data *objectData) OwnedObject {
	obj := OwnedObject{
		ID:      data.ObjectID,
		Version: data.Version,
		Digest:  data.Digest,
		Type:    data.Type,
	}
	if data.Content != nil {
		obj.Fields = data.Content.Fields
		if obj.Type == "" {
			obj.Type = data.Content.Type
		}
	}
	return obj
}
