package meeting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyString(t *testing.T) {
	key := Key{
		EventID: "ev_recurring",
		StartAt: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "ev_recurring@2026-03-10T15:00:00Z", key.String())
}

func TestKeyStringNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	key := Key{
		EventID: "ev_1",
		StartAt: time.Date(2026, 3, 10, 16, 0, 0, 0, loc),
	}
	assert.Equal(t, "ev_1@2026-03-10T15:00:00Z", key.String())
}

func TestRecurringOccurrencesGetDistinctKeys(t *testing.T) {
	first := Candidate{
		EventID: "ev_standup",
		StartAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC),
	}
	second := first
	second.StartAt = first.StartAt.Add(24 * time.Hour)
	second.EndAt = first.EndAt.Add(24 * time.Hour)

	assert.NotEqual(t, first.Key(), second.Key())
}

func TestScheduledDuration(t *testing.T) {
	c := Candidate{
		StartAt: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2026, 3, 10, 15, 45, 0, 0, time.UTC),
	}
	assert.Equal(t, 45*time.Minute, c.ScheduledDuration())
}

func TestCandidateValidate(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	valid := Candidate{
		EventID:       "ev_1",
		StartAt:       start,
		EndAt:         start.Add(30 * time.Minute),
		ConferenceURL: "https://meet.example.com/abc",
	}

	tests := []struct {
		name    string
		mutate  func(c *Candidate)
		wantErr string
	}{
		{
			name:   "valid candidate",
			mutate: func(c *Candidate) {},
		},
		{
			name:    "empty event id",
			mutate:  func(c *Candidate) { c.EventID = "" },
			wantErr: "empty event id",
		},
		{
			name:    "zero start",
			mutate:  func(c *Candidate) { c.StartAt = time.Time{} },
			wantErr: "zero start or end",
		},
		{
			name:    "end before start",
			mutate:  func(c *Candidate) { c.EndAt = start.Add(-time.Minute) },
			wantErr: "ends at or before its start",
		},
		{
			name:    "zero-length meeting",
			mutate:  func(c *Candidate) { c.EndAt = start },
			wantErr: "ends at or before its start",
		},
		{
			name:    "missing conference url",
			mutate:  func(c *Candidate) { c.ConferenceURL = "" },
			wantErr: "no conference URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
