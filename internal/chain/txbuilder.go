package chain

import (
	"encoding/json"
	"fmt"
)

// Arg references a transaction input or the result of an earlier command.
type Arg struct {
	Kind  string `json:"kind"` // "input", "result" or "gas"
	Index int    `json:"index"`
}

// GasCoin references the transaction's gas object as a command argument.
var GasCoin = Arg{Kind: "gas"}

// Input is a literal value or an object reference consumed by a command.
type Input struct {
	Kind   string          `json:"kind"` // "pure" or "object"
	Object string          `json:"object,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// Command is a single step of a programmable transaction.
type Command struct {
	Kind      string `json:"kind"` // "moveCall", "splitCoins", "transferObjects"
	Target    string `json:"target,omitempty"`
	Arguments []Arg  `json:"arguments,omitempty"`
	Recipient *Arg   `json:"recipient,omitempty"`
}

// Transaction is an ordered multi-command transaction assembled client-side
// and signed as one unit.
type Transaction struct {
	Sender   string    `json:"sender"`
	Inputs   []Input   `json:"inputs"`
	Commands []Command `json:"commands"`
}

// TxBuilder assembles a Transaction step by step. Each mutating method
// returns an Arg addressing the value it produced so later commands can
// consume earlier results.
type TxBuilder struct {
	tx Transaction
}

// NewTxBuilder starts a transaction for the given sender address.
func NewTxBuilder(sender string) *TxBuilder {
	return &TxBuilder{tx: Transaction{Sender: sender}}
}

// Pure appends a literal input encoded as JSON.
func (b *TxBuilder) Pure(v any) Arg {
	raw, err := json.Marshal(v)
	if err != nil {
		// Inputs are caller-constructed scalars and byte slices; marshal
		// cannot fail for those, so a panic flags a programming error.
		panic(fmt.Sprintf("encode pure input: %v", err))
	}
	b.tx.Inputs = append(b.tx.Inputs, Input{Kind: "pure", Value: raw})
	return Arg{Kind: "input", Index: len(b.tx.Inputs) - 1}
}

// Object appends an owned-object input by id.
func (b *TxBuilder) Object(id string) Arg {
	b.tx.Inputs = append(b.tx.Inputs, Input{Kind: "object", Object: id})
	return Arg{Kind: "input", Index: len(b.tx.Inputs) - 1}
}

// MoveCall appends a contract entry-point call and returns an Arg addressing
// its result.
func (b *TxBuilder) MoveCall(target string, args ...Arg) Arg {
	b.tx.Commands = append(b.tx.Commands, Command{Kind: "moveCall", Target: target, Arguments: args})
	return Arg{Kind: "result", Index: len(b.tx.Commands) - 1}
}

// SplitFromGas splits a coin of the given amount off the gas object.
func (b *TxBuilder) SplitFromGas(amount uint64) Arg {
	amt := b.Pure(amount)
	b.tx.Commands = append(b.tx.Commands, Command{Kind: "splitCoins", Arguments: []Arg{GasCoin, amt}})
	return Arg{Kind: "result", Index: len(b.tx.Commands) - 1}
}

// TransferObjects transfers the given objects to a recipient address.
func (b *TxBuilder) TransferObjects(recipient string, objects ...Arg) {
	rec := b.Pure(recipient)
	b.tx.Commands = append(b.tx.Commands, Command{Kind: "transferObjects", Arguments: objects, Recipient: &rec})
}

// Transaction returns the assembled transaction.
func (b *TxBuilder) Transaction() *Transaction {
	return &b.tx
}

// Bytes returns the canonical serialized form that gets signed and submitted.
func (t *Transaction) Bytes() ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return raw, nil
}
