package escrow

import (
	"encoding/json"
	"fmt"
)

// Status is the canonical escrow lifecycle state. The backend historically
// served two vocabularies for the same lifecycle; decoding normalizes the
// legacy names ("in-progress", "finished") onto this enum.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusDeposited   Status = "deposited"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// ParseStatus normalizes a backend status string onto the canonical enum.
func ParseStatus(raw string) (Status, error) {
	switch raw {
	case "initialized":
		return StatusInitialized, nil
	case "deposited", "in-progress":
		return StatusDeposited, nil
	case "completed", "finished":
		return StatusCompleted, nil
	case "cancelled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown escrow status %q", raw)
}

// CanTransition reports whether moving from s to next is a legal forward
// step. The lifecycle is monotonic: initialized -> deposited -> (completed |
// cancelled); nothing ever moves backward.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusInitialized:
		return next == StatusDeposited
	case StatusDeposited:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// UnmarshalJSON normalizes legacy vocabulary while decoding backend payloads.
func (s *Status) UnmarshalJSON(raw []byte) error {
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return err
	}
	parsed, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
