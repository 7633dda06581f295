package chain

import (
	"context"
	"encoding/json"
)

// ObjectRef identifies an on-chain object together with its fully-qualified
// type string. Refs are discovered per operation and never cached.
type ObjectRef struct {
	ID   string `json:"objectId"`
	Type string `json:"type"`
}

// OwnedObject is one entry from an owned-objects scan.
type OwnedObject struct {
	ID      string                     `json:"objectId"`
	Type    string                     `json:"type"`
	Version string                     `json:"version,omitempty"`
	Digest  string                     `json:"digest,omitempty"`
	Fields  map[string]json.RawMessage `json:"fields,omitempty"`
}

// Ref returns the object's reference.
func (o OwnedObject) Ref() ObjectRef {
	return ObjectRef{ID: o.ID, Type: o.Type}
}

// ExecutionResult is the node's response to a signed transaction submission.
type ExecutionResult struct {
	Digest  string          `json:"digest"`
	Status  string          `json:"status"`
	Error   string          `json:"error,omitempty"`
	Effects json.RawMessage `json:"effects,omitempty"`
}

// Reader provides the read-only RPC surface the locator depends on.
type Reader interface {
	OwnedObjects(ctx context.Context, address string) ([]OwnedObject, error)
	ObjectFields(ctx context.Context, id string) (map[string]json.RawMessage, error)
}

// Submitter sends signed transaction bytes to the node.
type Submitter interface {
	ExecuteTransaction(ctx context.Context, txBytes []byte, signature string) (*ExecutionResult, error)
}
