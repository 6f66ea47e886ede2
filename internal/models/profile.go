package models

// Role distinguishes the two user kinds.
type Role string

const (
	RoleClient Role = "client"
	RoleMedic  Role = "medic"
)

// Profile carries the editable account data of a user.
type Profile struct {
	Username     string   `json:"username"`
	Role         Role     `json:"type"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	HealthNumber int      `json:"health_number,omitempty"`
	BirthDate    string   `json:"birth_date,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	Height       *float64 `json:"height,omitempty"`
	Diseases     string   `json:"diseases,omitempty"`
	Company      string   `json:"company,omitempty"`
	Specialities string   `json:"specialities,omitempty"`
}

// Permission is one row of the medic/client data-sharing workflow.
type Permission struct {
	Medic    string `json:"medic"`
	Client   string `json:"client"`
	Duration int    `json:"duration"`
	State    string `json:"state"` // pending, accepted, rejected, expired
}
