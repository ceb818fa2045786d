package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActivePicksLatestEffective(t *testing.T) {
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	timeline := []FeeSchedule{
		{EffectiveFrom: jan, StandardFeeBps: 1000},
		{EffectiveFrom: feb, StandardFeeBps: 1200},
	}

	_, ok := Active(timeline, jan.Add(-time.Second))
	assert.False(t, ok)

	got, ok := Active(timeline, feb.Add(-time.Second))
	assert.True(t, ok)
	assert.Equal(t, int64(1000), got.StandardFeeBps)

	got, ok = Active(timeline, feb)
	assert.True(t, ok)
	assert.Equal(t, int64(1200), got.StandardFeeBps)
}

func TestFeeBpsForAndHoldRelease(t *testing.T) {
	s := FeeSchedule{StandardFeeBps: 1000, VIPFeeBps: 700, HoldDays: 7}
	assert.Equal(t, int64(1000), FeeBpsFor(s, TierStandard))
	assert.Equal(t, int64(700), FeeBpsFor(s, TierVIP))

	asOf := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), s.HoldReleaseDate(asOf))
}
