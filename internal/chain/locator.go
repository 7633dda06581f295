package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	lockedTypeSuffix = "::lock::Locked<0x2::coin::Coin<0x2::sui::SUI>>"
	keyTypeSuffix    = "::lock::Key"

	// Substring fallbacks tolerate minor formatting differences in the type
	// strings different node versions return.
	lockedTypeFragment = "::lock::Locked<"
	keyTypeFragment    = "::lock::Key"
)

// LockedPair is a locked-payment object and the key that unlocks it.
type LockedPair struct {
	Locked ObjectRef
	Key    ObjectRef
}

// Locator classifies an address's owned objects into the locked-payment/key
// pair belonging to an escrow package. It performs read-only RPC calls and
// has no other side effects.
type Locator struct {
	reader Reader
}

// NewLocator builds a locator over the given chain reader.
func NewLocator(reader Reader) *Locator {
	return &Locator{reader: reader}
}

// LocateLockedPair scans the address's owned objects for exactly one
// locked-payment object and one key object under packageID.
//
// Selection policy: the first candidate of each kind is the default. A
// refinement pass then inspects each locked candidate's content; when a
// locked object exposes a reference to its key and a key candidate with that
// exact id exists, the structurally matched pair overrides the default. The
// naive default remains in effect only when no structural match is found.
func (l *Locator) LocateLockedPair(ctx context.Context, address, packageID string) (LockedPair, error) {
	objects, err := l.reader.OwnedObjects(ctx, address)
	if err != nil {
		return LockedPair{}, fmt.Errorf("scan owned objects: %w", err)
	}

	var lockedCandidates, keyCandidates []OwnedObject
	for _, obj := range objects {
		switch {
		case matchesType(obj.Type, packageID, lockedTypeSuffix, lockedTypeFragment):
			lockedCandidates = append(lockedCandidates, obj)
		case matchesType(obj.Type, packageID, keyTypeSuffix, keyTypeFragment):
			keyCandidates = append(keyCandidates, obj)
		}
	}

	if len(lockedCandidates) == 0 || len(keyCandidates) == 0 {
		return LockedPair{}, &PairNotFoundError{
			Address:       address,
			PackageID:     packageID,
			MissingLocked: len(lockedCandidates) == 0,
			MissingKey:    len(keyCandidates) == 0,
			ObservedTypes: observedTypes(objects),
		}
	}

	pair := LockedPair{
		Locked: lockedCandidates[0].Ref(),
		Key:    keyCandidates[0].Ref(),
	}

	for _, locked := range lockedCandidates {
		keyID, ok := l.keyReference(ctx, locked)
		if !ok {
			continue
		}
		for _, key := range keyCandidates {
			if key.ID == keyID {
				return LockedPair{Locked: locked.Ref(), Key: key.Ref()}, nil
			}
		}
	}

	return pair, nil
}

// keyReference extracts the key object id referenced by a locked object's
// content, fetching full content when the scan did not include it.
func (l *Locator) keyReference(ctx context.Context, locked OwnedObject) (string, bool) {
	fields := locked.Fields
	if fields == nil {
		fetched, err := l.reader.ObjectFields(ctx, locked.ID)
		if err != nil {
			return "", false
		}
		fields = fetched
	}
	raw, ok := fields["key"]
	if !ok {
		return "", false
	}
	// The key field is either a plain id string or a nested {"id": "0x.."}.
	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil && direct != "" {
		return direct, true
	}
	var nested struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.ID != "" {
		return nested.ID, true
	}
	return "", false
}

func matchesType(typeName, packageID, suffix, fragment string) bool {
	if typeName == "" {
		return false
	}
	if typeName == packageID+suffix {
		return true
	}
	return strings.HasPrefix(typeName, packageID) && strings.Contains(typeName, fragment)
}

func observedTypes(objects []OwnedObject) []string {
	seen := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		if obj.Type != "" {
			seen[obj.Type] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// PairNotFoundError reports a failed locked-payment/key discovery along with
// every object type observed during the scan, as a diagnostic aid.
type PairNotFoundError struct {
	Address       string
	PackageID     string
	MissingLocked bool
	MissingKey    bool
	ObservedTypes []string
}

func (e *PairNotFoundError) Error() string {
	var missing []string
	if e.MissingLocked {
		missing = append(missing, "locked payment")
	}
	if e.MissingKey {
		missing = append(missing, "key")
	}
	return fmt.Sprintf("no %s object found for package %s under %s; observed types: [%s]",
		strings.Join(missing, " or "), e.PackageID, e.Address, strings.Join(e.ObservedTypes, ", "))
}
