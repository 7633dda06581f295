package chain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const testPackage = "0xabc123"

type fakeReader struct {
	owned        []OwnedObject
	fields       map[string]map[string]json.RawMessage
	ownedErr     error
	ownedCalls   int
	fieldsCalls  int
	fieldsErrFor map[string]error
}

func (f *fakeReader) OwnedObjects(_ context.Context, _ string) ([]OwnedObject, error) {
	f.ownedCalls++
	return f.owned, f.ownedErr
}

func (f *fakeReader) ObjectFields(_ context.Context, id string) (map[string]json.RawMessage, error) {
	f.fieldsCalls++
	if err, ok := f.fieldsErrFor[id]; ok {
		return nil, err
	}
	fields, ok := f.fields[id]
	if !ok {
		return nil, errors.New("object not found")
	}
	return fields, nil
}

func lockedObj(id string) OwnedObject {
	return OwnedObject{ID: id, Type: testPackage + lockedTypeSuffix}
}

func keyObj(id string) OwnedObject {
	return OwnedObject{ID: id, Type: testPackage + keyTypeSuffix}
}

func TestLocateLockedPair_StructuralMatchBeatsDefault(t *testing.T) {
	reader := &fakeReader{
		owned: []OwnedObject{
			lockedObj("0xlock1"),
			lockedObj("0xlock2"),
			keyObj("0xkey1"),
			keyObj("0xkey2"),
			{ID: "0xcoin", Type: "0x2::coin::Coin<0x2::sui::SUI>"},
		},
		fields: map[string]map[string]json.RawMessage{
			"0xlock1": {"balance": json.RawMessage(`"100"`)},
			"0xlock2": {"key": json.RawMessage(`{"id":"0xkey2"}`)},
		},
	}

	pair, err := NewLocator(reader).LocateLockedPair(context.Background(), "0xowner", testPackage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair.Locked.ID != "0xlock2" || pair.Key.ID != "0xkey2" {
		t.Fatalf("expected structurally matched pair (0xlock2, 0xkey2), got (%s, %s)", pair.Locked.ID, pair.Key.ID)
	}
}

func TestLocateLockedPair_PlainStringKeyField(t *testing.T) {
	reader := &fakeReader{
		owned: []OwnedObject{
			{ID: "0xlockA", Type: testPackage + lockedTypeSuffix, Fields: map[string]json.RawMessage{
				"key": json.RawMessage(`"0xkeyB"`),
			}},
			keyObj("0xkeyA"),
			keyObj("0xkeyB"),
		},
	}

	pair, err := NewLocator(reader).LocateLockedPair(context.Background(), "0xowner", testPackage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair.Key.ID != "0xkeyB" {
		t.Fatalf("expected key 0xkeyB, got %s", pair.Key.ID)
	}
	if reader.fieldsCalls != 0 {
		t.Fatalf("fields were included in the scan, expected no extra fetches, got %d", reader.fieldsCalls)
	}
}

func TestLocateLockedPair_FallsBackToFirstCandidates(t *testing.T) {
	reader := &fakeReader{
		owned: []OwnedObject{
			lockedObj("0xlock1"),
			keyObj("0xkey1"),
		},
		fieldsErrFor: map[string]error{"0xlock1": errors.New("rpc down")},
	}

	pair, err := NewLocator(reader).LocateLockedPair(context.Background(), "0xowner", testPackage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair.Locked.ID != "0xlock1" || pair.Key.ID != "0xkey1" {
		t.Fatalf("expected naive default pair, got (%s, %s)", pair.Locked.ID, pair.Key.ID)
	}
}

func TestLocateLockedPair_SubstringFallbackMatch(t *testing.T) {
	// Some node versions render the coin parameter with long-form addresses.
	longForm := testPackage + "::lock::Locked<0x0000000000000000000000000000000000000000000000000000000000000002::coin::Coin<0x2::sui::SUI>>"
	reader := &fakeReader{
		owned: []OwnedObject{
			{ID: "0xlockL", Type: longForm},
			keyObj("0xkeyL"),
		},
		fields: map[string]map[string]json.RawMessage{
			"0xlockL": {"key": json.RawMessage(`{"id":"0xkeyL"}`)},
		},
	}

	pair, err := NewLocator(reader).LocateLockedPair(context.Background(), "0xowner", testPackage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair.Locked.ID != "0xlockL" {
		t.Fatalf("expected substring-matched locked object, got %s", pair.Locked.ID)
	}
}

func TestLocateLockedPair_NoMatchesListsObservedTypes(t *testing.T) {
	reader := &fakeReader{
		owned: []OwnedObject{
			{ID: "0xcoin", Type: "0x2::coin::Coin<0x2::sui::SUI>"},
			{ID: "0xnft", Type: "0xdef::nft::Sticker"},
		},
	}

	_, err := NewLocator(reader).LocateLockedPair(context.Background(), "0xowner", testPackage)
	if err == nil {
		t.Fatal("expected discovery error")
	}
	var notFound *PairNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected PairNotFoundError, got %T: %v", err, err)
	}
	if !notFound.MissingLocked || !notFound.MissingKey {
		t.Fatalf("expected both kinds missing: %+v", notFound)
	}
	msg := err.Error()
	for _, want := range []string{"0x2::coin::Coin<0x2::sui::SUI>", "0xdef::nft::Sticker"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected error to list observed type %q, got: %s", want, msg)
		}
	}
}

func TestLocateLockedPair_ScanErrorPropagates(t *testing.T) {
	reader := &fakeReader{ownedErr: errors.New("node unreachable")}
	_, err := NewLocator(reader).LocateLockedPair(context.Background(), "0xowner", testPackage)
	if err == nil || !strings.Contains(err.Error(), "node unreachable") {
		t.Fatalf("expected scan error, got %v", err)
	}
}
