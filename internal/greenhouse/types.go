package greenhouse

import "time"

// Greenhouse groups modules that regulate one shared enclosure. One member
// is the main module: its setpoints are the greenhouse's setpoints, copied
// onto every other member so all actuators pull towards the same climate.
type Greenhouse struct {
	// ID is the unique greenhouse identifier (UUID).
	ID string `json:"id"`

	// Name is the owner-assigned label, unique per owner.
	Name string `json:"name"`

	// OwnerID references the user who created the greenhouse.
	OwnerID string `json:"owner_id"`

	// MainModuleID references the member whose targets define the
	// greenhouse climate.
	MainModuleID string `json:"main_module_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
