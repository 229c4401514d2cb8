package staff

import "facilityflow/request"

type Status string

const (
	StatusFree Status = "free"
	StatusBusy Status = "busy"
)

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Worker is a maintenance staff member and where they were last seen.
// Gender does not influence queue ordering.
type Worker struct {
	ID                   string
	UserID               *string
	Name                 string
	TaskType             request.TaskType
	Gender               Gender
	CurrentBuilding      string
	CurrentWing          string
	CurrentLocationFloor int
	Status               Status
}

// Location is a point a worker can be moved to.
type Location struct {
	Building string
	Wing     string
	Floor    int
}
