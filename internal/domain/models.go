package domain

import "time"

// Endpoint is a monitored host or URL together with the application name
// shown next to it.
type Endpoint struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

// Key identifies an endpoint across cycles.
func (e Endpoint) Key() string {
	return e.Address + "\x00" + e.Label
}

type Status int

const (
	StatusUnknown Status = iota
	StatusActive
	StatusInactive
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusInactive:
		return "Inactive"
	default:
		return "Unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Entry is the classification of one endpoint within a cycle.
type Entry struct {
	Endpoint  Endpoint  `json:"endpoint"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Alerting reports whether the entry belongs to the alert set.
func (e Entry) Alerting() bool {
	return e.Status == StatusInactive || e.Status == StatusUnknown
}

// CycleResult holds one entry per configured endpoint, in configured order.
type CycleResult struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Entries    []Entry   `json:"entries"`
}

// AlertSet returns the entries that are not Active, keeping their order.
func (r CycleResult) AlertSet() []Entry {
	out := make([]Entry, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Alerting() {
			out = append(out, e)
		}
	}
	return out
}

// AllActive reports whether every entry is Active.
func (r CycleResult) AllActive() bool {
	for _, e := range r.Entries {
		if e.Status != StatusActive {
			return false
		}
	}
	return true
}
