package models

import (
	"time"
)

// Cached tablet status values. The status column is a materialized view over the
// two ledgers; callers never write it directly, every transition recomputes it.
const (
	StatusAvailable   = "Available"
	StatusInUse       = "InUse"
	StatusMaintenance = "Maintenance"
	StatusReserve     = "Reserve"
)

// DateLayout is the ISO date format used for all ledger dates.
const DateLayout = "2006-01-02"

// Tablet is a physical handheld device tracked by asset tag (tombamento)
// and serial number.
type Tablet struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Identity
	Tombamento   string `json:"tombamento" gorm:"not null;uniqueIndex;type:varchar(50)"` // Asset tag
	SerialNumber string `json:"serial_number" gorm:"not null;index;type:varchar(100)"`   // Unique by intent, legacy data may violate it
	Model        string `json:"model" gorm:"not null;type:varchar(100)"`

	// Derived status, recomputed from the ledgers on every mutation
	Status string `json:"status" gorm:"not null;default:'Available';type:varchar(20)"`

	// Reserve pool handling
	IsReserve  bool   `json:"is_reserve" gorm:"default:false"`
	ReservePIN string `json:"reserve_pin" gorm:"type:varchar(20)"`  // Unlock code, meaningful while a reserve tablet is out
	Municipio  string `json:"municipio" gorm:"type:varchar(150)"`   // Home location of an unassigned reserve tablet

	// Denormalized pointer to the currently open support ticket
	ActiveTicket string `json:"active_ticket" gorm:"type:varchar(50)"`

	Assignments  []Assignment  `json:"assignments,omitempty" gorm:"foreignKey:TabletID"`
	Maintenances []Maintenance `json:"maintenances,omitempty" gorm:"foreignKey:TabletID"`
}

func (Tablet) TableName() string {
	return "tablets"
}

// FallbackStatus returns the status a tablet holds when both ledgers are closed.
func (t *Tablet) FallbackStatus() string {
	if t.IsReserve {
		return StatusReserve
	}
	return StatusAvailable
}

// Professional represents a field worker a tablet can be loaned to.
type Professional struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name         string `json:"name" gorm:"not null;type:varchar(150)"`
	CPF          string `json:"cpf" gorm:"not null;index;type:varchar(20)"` // Tax id, unique by intent
	Municipality string `json:"municipality" gorm:"type:varchar(150)"`     // Free text, sometimes "City - Unit"
}

func (Professional) TableName() string {
	return "professionals"
}

// Assignment is one custody period of a tablet. ProfessionalID is null when the
// tablet is parked under a municipality bucket instead of a named person.
// Invariant: at most one row per tablet with end_date IS NULL.
type Assignment struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TabletID uint    `json:"tablet_id" gorm:"not null;index"`
	Tablet   *Tablet `json:"tablet,omitempty" gorm:"foreignKey:TabletID;constraint:OnDelete:CASCADE"`

	ProfessionalID *uint         `json:"professional_id"`
	Professional   *Professional `json:"professional,omitempty" gorm:"foreignKey:ProfessionalID;constraint:OnDelete:RESTRICT"`

	StartDate string  `json:"start_date" gorm:"not null;type:varchar(10)"`
	EndDate   *string `json:"end_date" gorm:"type:varchar(10)"` // null = custody currently open

	// Who performed the handover, distinct from the borrower
	AttendantName string `json:"attendant_name" gorm:"type:varchar(150)"`

	// Municipality bucket label for city-mode custody
	City string `json:"city,omitempty" gorm:"type:varchar(150)"`
}

func (Assignment) TableName() string {
	return "assignments"
}

// IsOpen reports whether the custody period is still active.
func (a *Assignment) IsOpen() bool {
	return a.EndDate == nil
}

// Maintenance is one repair period of a tablet.
// Invariant: at most one row per tablet with exit_date IS NULL.
type Maintenance struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TabletID uint    `json:"tablet_id" gorm:"not null;index"`
	Tablet   *Tablet `json:"tablet,omitempty" gorm:"foreignKey:TabletID;constraint:OnDelete:CASCADE"`

	EntryDate string  `json:"entry_date" gorm:"not null;type:varchar(10)"`
	ExitDate  *string `json:"exit_date" gorm:"type:varchar(10)"` // null = still in repair

	Reason string `json:"reason" gorm:"type:varchar(200)"`
	Notes  string `json:"notes" gorm:"type:text"`
	Ticket string `json:"ticket" gorm:"type:varchar(50)"` // Support ticket id, attached later
}

func (Maintenance) TableName() string {
	return "maintenances"
}

// IsOpen reports whether the repair period is still active.
func (m *Maintenance) IsOpen() bool {
	return m.ExitDate == nil
}

// TodayISO returns the current date in ISO format.
func TodayISO() string {
	return time.Now().Format(DateLayout)
}

// DiffDays returns the number of whole days between two ISO dates, never negative.
// An empty "to" means today.
func DiffDays(fromISO, toISO string) int {
	if fromISO == "" {
		return 0
	}
	if toISO == "" {
		toISO = TodayISO()
	}
	from, err := time.Parse(DateLayout, fromISO)
	if err != nil {
		return 0
	}
	to, err := time.Parse(DateLayout, toISO)
	if err != nil {
		return 0
	}
	days := int(to.Sub(from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// AllModels lists every model for migration, dependency order first.
func AllModels() []interface{} {
	return []interface{}{
		&Professional{},
		&Tablet{},
		&Assignment{},
		&Maintenance{},
	}
}
