package models

import (
	"time"

	"github.com/google/uuid"
)

// Machine is the durable identity of a physical exam station. The UUID token is
// generated once on the station and survives reconnects; the desk number is unique
// across all machines except while a swap is in flight, when the machine being
// displaced briefly holds the negated target number.
type Machine struct {
	ID                  uuid.UUID  `json:"id"`
	UUID                string     `json:"uuid"`
	MAC                 *string    `json:"mac"`
	Hostname            *string    `json:"hostname"`
	IP                  *string    `json:"ip"`
	Platform            *string    `json:"platform"`
	DeskNumber          int        `json:"deskNumber"`
	Label               string     `json:"label"`
	AssignedEmployeeID  *uuid.UUID `json:"assignedEmployeeId"`
	AssignedStructureID *uuid.UUID `json:"assignedStructureId"`
	LastConnected       time.Time  `json:"lastConnected"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type Employee struct {
	ID          uuid.UUID  `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	FatherName  string     `json:"father_name"`
	Gender      string     `json:"gender"`
	StructureID *uuid.UUID `json:"structure_id"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (e *Employee) FullName() string {
	name := e.LastName + " " + e.FirstName
	if e.FatherName != "" {
		name += " " + e.FatherName
	}
	return name
}

type Structure struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type EmployeeRequest struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	FatherName  string     `json:"father_name"`
	Gender      string     `json:"gender"`
	StructureID *uuid.UUID `json:"structure_id"`
	IsActive    *bool      `json:"is_active"`
}

type StructureRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}
