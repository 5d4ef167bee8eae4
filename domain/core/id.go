package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Falls back to v4 if v7 is not available
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific identifier types
type (
	// RunID identifies one execution of the analysis pipeline.
	RunID ID
	// GroupKey identifies an experimental group produced by the partitioner,
	// e.g. "format1_orderA".
	GroupKey string
	// ItemKey names one questionnaire item column, e.g. "g07".
	ItemKey string
)

// NewRunID creates a fresh run identifier.
func NewRunID() RunID {
	return RunID(NewID())
}

func (id RunID) String() string   { return ID(id).String() }
func (k GroupKey) String() string { return string(k) }
func (k ItemKey) String() string  { return string(k) }

// ParseRunID parses a string into a RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// PairKey identifies a group pair compared by the bootstrap estimator.
// Self-pairs (A == B) are legal and serve as a sanity check.
type PairKey struct {
	GroupA GroupKey `json:"group_a"`
	GroupB GroupKey `json:"group_b"`
}

func (p PairKey) String() string {
	return string(p.GroupA) + "~" + string(p.GroupB)
}

// IsSelf reports whether the pair compares a group to itself.
func (p PairKey) IsSelf() bool {
	return p.GroupA == p.GroupB
}
