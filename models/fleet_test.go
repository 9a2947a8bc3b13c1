package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFallbackStatus(t *testing.T) {
	ordinary := Tablet{}
	assert.Equal(t, StatusAvailable, ordinary.FallbackStatus())

	reserve := Tablet{IsReserve: true}
	assert.Equal(t, StatusReserve, reserve.FallbackStatus())
}

func TestAssignmentIsOpen(t *testing.T) {
	open := Assignment{StartDate: "2024-01-10"}
	assert.True(t, open.IsOpen())

	end := "2024-02-01"
	closed := Assignment{StartDate: "2024-01-10", EndDate: &end}
	assert.False(t, closed.IsOpen())
}

func TestMaintenanceIsOpen(t *testing.T) {
	open := Maintenance{EntryDate: "2024-01-10"}
	assert.True(t, open.IsOpen())

	exit := "2024-01-20"
	closed := Maintenance{EntryDate: "2024-01-10", ExitDate: &exit}
	assert.False(t, closed.IsOpen())
}

func TestTodayISO(t *testing.T) {
	today := TodayISO()
	parsed, err := time.Parse(DateLayout, today)
	assert.NoError(t, err)
	assert.Equal(t, today, parsed.Format(DateLayout))
}

func TestDiffDays(t *testing.T) {
	assert.Equal(t, 10, DiffDays("2024-01-10", "2024-01-20"))
	assert.Equal(t, 0, DiffDays("2024-01-10", "2024-01-10"))

	// Never negative
	assert.Equal(t, 0, DiffDays("2024-01-20", "2024-01-10"))

	// Empty or broken input degrades to zero
	assert.Equal(t, 0, DiffDays("", "2024-01-10"))
	assert.Equal(t, 0, DiffDays("not-a-date", "2024-01-10"))

	// Empty "to" means today
	yesterday := time.Now().AddDate(0, 0, -3).Format(DateLayout)
	assert.Equal(t, 3, DiffDays(yesterday, ""))
}
