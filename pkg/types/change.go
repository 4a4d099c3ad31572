package types

import (
	"slices"
	"strings"
)

// ChangeReason describes why a store reported external changes.
type ChangeReason int

const (
	// ReasonServerChange means another writer changed one or more values.
	ReasonServerChange ChangeReason = iota
	// ReasonInitialSyncChange means values arrived during a first sync
	// and may replace values written locally before it completed.
	ReasonInitialSyncChange
	// ReasonQuotaViolationChange means the store exceeded its quota and
	// rejected or dropped the named keys.
	ReasonQuotaViolationChange
	// ReasonAccountChange means the owning account changed and the named
	// keys were replaced by the new account's values.
	ReasonAccountChange
)

// String returns the reason name used in logs and CLI output.
func (r ChangeReason) String() string {
	switch r {
	case ReasonServerChange:
		return "server"
	case ReasonInitialSyncChange:
		return "initial-sync"
	case ReasonQuotaViolationChange:
		return "quota-violation"
	case ReasonAccountChange:
		return "account"
	default:
		return "unknown"
	}
}

// Change is an external change notification. Keys lists every key that
// changed; it is sorted and free of duplicates when built with NewChange.
type Change struct {
	Reason ChangeReason
	Keys   []string
}

// NewChange builds a Change with keys sorted and deduplicated. Empty keys
// are dropped.
func NewChange(reason ChangeReason, keys ...string) Change {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		out = append(out, k)
	}
	slices.Sort(out)
	return Change{Reason: reason, Keys: slices.Compact(out)}
}

// Contains reports whether key is one of the changed keys.
func (c Change) Contains(key string) bool {
	return slices.Contains(c.Keys, key)
}
