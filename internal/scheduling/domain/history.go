package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OwnershipEntry records one holder of an assignment
type OwnershipEntry struct {
	EmployeeID    string    `json:"employee_id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email,omitempty"`
	TransferredAt time.Time `json:"transferred_at"`
}

// OwnershipHistory is the append-only list of holders, oldest first.
// It is stored as a JSONB array.
type OwnershipHistory []OwnershipEntry

// Last returns the most recent entry
func (h OwnershipHistory) Last() (OwnershipEntry, bool) {
	if len(h) == 0 {
		return OwnershipEntry{}, false
	}
	return h[len(h)-1], true
}

// Append returns a copy of h with entry added, unless entry's employee is
// already the most recent holder. h itself is never modified.
func (h OwnershipHistory) Append(entry OwnershipEntry) OwnershipHistory {
	if last, ok := h.Last(); ok && last.EmployeeID == entry.EmployeeID {
		return h.clone()
	}
	return append(h.clone(), entry)
}

// HasPrefix reports whether prev is an unchanged prefix of h
func (h OwnershipHistory) HasPrefix(prev OwnershipHistory) bool {
	if len(prev) > len(h) {
		return false
	}
	for i := range prev {
		if prev[i].EmployeeID != h[i].EmployeeID || !prev[i].TransferredAt.Equal(h[i].TransferredAt) {
			return false
		}
	}
	return true
}

func (h OwnershipHistory) clone() OwnershipHistory {
	out := make(OwnershipHistory, len(h), len(h)+2)
	copy(out, h)
	return out
}

// Value implements driver.Valuer. The JSON is sent as text; lib/pq would
// encode a []byte as bytea.
func (h OwnershipHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (h *OwnershipHistory) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*h = OwnershipHistory{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into OwnershipHistory", src)
	}

	var entries OwnershipHistory
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("invalid ownership history: %w", err)
	}
	if entries == nil {
		entries = OwnershipHistory{}
	}
	*h = entries
	return nil
}
