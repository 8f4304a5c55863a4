package pipeline

import (
	"sort"
	"strings"
)

// Appointment is one scraped opening at the booking site: a day plus the
// free time slots on that day. Times are kept normalized (sorted, unique)
// so that equal slot sets always produce the same Key.
type Appointment struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

// ScrapeResult is the raw tuple produced by the external scraper. Available
// is a pointer because the scraper reports null for days it could not check.
type ScrapeResult struct {
	Date      string   `json:"date"`
	Available *bool    `json:"available"`
	Times     []string `json:"times"`
}

// Actionable reports whether a scraper entry should enter the pipeline at
// all: only confirmed-available days with at least one free slot.
func (r ScrapeResult) Actionable() bool {
	return r.Available != nil && *r.Available && len(r.Times) > 0
}

func (r ScrapeResult) Appointment() Appointment {
	return Appointment{Date: r.Date, Times: r.Times}.Normalize()
}

// Normalize returns a copy with the time slots sorted and deduplicated.
func (a Appointment) Normalize() Appointment {
	seen := make(map[string]bool, len(a.Times))
	times := make([]string, 0, len(a.Times))
	for _, t := range a.Times {
		if seen[t] {
			continue
		}
		seen[t] = true
		times = append(times, t)
	}
	sort.Strings(times)

	return Appointment{Date: a.Date, Times: times}
}

// Key is the dedup identity of an appointment: the date joined with the
// normalized slot set. Two appointments with the same key are the same
// notification-worthy fact.
func (a Appointment) Key() string {
	n := a.Normalize()
	return n.Date + "|" + strings.Join(n.Times, ",")
}

// TimesKey is the slot-set half of Key, used as the ledger uniqueness
// column alongside the date.
func (a Appointment) TimesKey() string {
	n := a.Normalize()
	return strings.Join(n.Times, ",")
}

// MergeAppointments unions any number of appointment lists, collapsing
// duplicates by Key and returning the result ordered by date, then key.
func MergeAppointments(lists ...[]Appointment) []Appointment {
	byKey := map[string]Appointment{}
	for _, list := range lists {
		for _, a := range list {
			n := a.Normalize()
			byKey[n.Key()] = n
		}
	}

	merged := make([]Appointment, 0, len(byKey))
	for _, a := range byKey {
		merged = append(merged, a)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Date != merged[j].Date {
			return merged[i].Date < merged[j].Date
		}
		return merged[i].Key() < merged[j].Key()
	})

	return merged
}
