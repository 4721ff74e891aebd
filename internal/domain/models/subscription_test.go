package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSubscription_NextCycleEnd(t *testing.T) {
	tests := []struct {
		name     string
		interval models.BillingInterval
		start    time.Time
		want     time.Time
	}{
		{"monthly regular", models.IntervalMonthly, day(2024, 3, 1), day(2024, 3, 31)},
		{"monthly into leap february", models.IntervalMonthly, day(2024, 2, 1), day(2024, 2, 29)},
		{"monthly into plain february", models.IntervalMonthly, day(2023, 2, 1), day(2023, 2, 28)},
		{"weekly", models.IntervalWeekly, day(2024, 1, 1), day(2024, 1, 7)},
		{"yearly", models.IntervalYearly, day(2024, 1, 1), day(2024, 12, 31)},
		{"yearly from leap day window", models.IntervalYearly, day(2024, 3, 1), day(2025, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &models.Subscription{BillingInterval: tt.interval}
			assert.Equal(t, tt.want, sub.NextCycleEnd(tt.start))
		})
	}
}

func TestBillingCycleStatus_IsTerminal(t *testing.T) {
	assert.True(t, models.CycleStatusSucceeded.IsTerminal())
	assert.True(t, models.CycleStatusExhausted.IsTerminal())
	assert.False(t, models.CycleStatusScheduled.IsTerminal())
	assert.False(t, models.CycleStatusInProgress.IsTerminal())
	assert.False(t, models.CycleStatusAwaitingRetry.IsTerminal())
}

func TestBillingCycleStatus_ArchiveState(t *testing.T) {
	assert.Equal(t, "completed", models.CycleStatusSucceeded.ArchiveState())
	assert.Equal(t, "failed", models.CycleStatusExhausted.ArchiveState())
	assert.Empty(t, models.CycleStatusAwaitingRetry.ArchiveState())
}
