package pipeline

import (
	"testing"

	"github.com/go-test/deep"
)

func TestScrapeResult_Actionable(t *testing.T) {
	yes := true
	no := false

	tests := []struct {
		name   string
		result ScrapeResult
		exp    bool
	}{
		{
			name:   "available with times",
			result: ScrapeResult{Date: "2026-09-10", Available: &yes, Times: []string{"10:00"}},
			exp:    true,
		},
		{
			name:   "available without times",
			result: ScrapeResult{Date: "2026-09-10", Available: &yes},
			exp:    false,
		},
		{
			name:   "not available",
			result: ScrapeResult{Date: "2026-09-10", Available: &no, Times: []string{"10:00"}},
			exp:    false,
		},
		{
			name:   "availability unknown",
			result: ScrapeResult{Date: "2026-09-10", Times: []string{"10:00"}},
			exp:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Actionable(); got != tt.exp {
				t.Errorf("expected %t, but got %t", tt.exp, got)
			}
		})
	}
}

func TestAppointment_Normalize(t *testing.T) {
	a := Appointment{Date: "2026-09-10", Times: []string{"14:30", "09:00", "14:30", "11:15"}}

	exp := Appointment{Date: "2026-09-10", Times: []string{"09:00", "11:15", "14:30"}}
	if diff := deep.Equal(exp, a.Normalize()); diff != nil {
		t.Error(diff)
	}
}

func TestAppointment_Key(t *testing.T) {
	a := Appointment{Date: "2026-09-10", Times: []string{"14:30", "09:00"}}
	b := Appointment{Date: "2026-09-10", Times: []string{"09:00", "14:30", "09:00"}}

	if a.Key() != b.Key() {
		t.Errorf("expected equal keys for the same slot set, but got %q and %q", a.Key(), b.Key())
	}

	if exp := "2026-09-10|09:00,14:30"; a.Key() != exp {
		t.Errorf("expected key %q, but got %q", exp, a.Key())
	}

	c := Appointment{Date: "2026-09-10", Times: []string{"09:00"}}
	if a.Key() == c.Key() {
		t.Error("expected different keys for different slot sets")
	}
}

func TestAppointment_TimesKey(t *testing.T) {
	a := Appointment{Date: "2026-09-10", Times: []string{"14:30", "09:00"}}
	if exp := "09:00,14:30"; a.TimesKey() != exp {
		t.Errorf("expected times key %q, but got %q", exp, a.TimesKey())
	}
}

func TestMergeAppointments(t *testing.T) {
	merged := MergeAppointments(
		[]Appointment{
			{Date: "2026-09-12", Times: []string{"10:00"}},
			{Date: "2026-09-10", Times: []string{"14:30", "09:00"}},
		},
		[]Appointment{
			{Date: "2026-09-10", Times: []string{"09:00", "14:30"}},
			{Date: "2026-09-11", Times: []string{"16:00"}},
		},
	)

	exp := []Appointment{
		{Date: "2026-09-10", Times: []string{"09:00", "14:30"}},
		{Date: "2026-09-11", Times: []string{"16:00"}},
		{Date: "2026-09-12", Times: []string{"10:00"}},
	}

	if diff := deep.Equal(exp, merged); diff != nil {
		t.Error(diff)
	}
}

func TestMergeAppointments_KeepsDistinctSlotSetsOnTheSameDay(t *testing.T) {
	merged := MergeAppointments(
		[]Appointment{{Date: "2026-09-10", Times: []string{"09:00"}}},
		[]Appointment{{Date: "2026-09-10", Times: []string{"09:00", "14:30"}}},
	)

	if len(merged) != 2 {
		t.Errorf("expected 2 appointments, but got %d", len(merged))
	}
}
