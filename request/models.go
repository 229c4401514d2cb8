package request

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type TaskType string

const (
	TaskCleaning    TaskType = "cleaning"
	TaskWater       TaskType = "water"
	TaskMaintenance TaskType = "maintenance"
	TaskPest        TaskType = "pest"
	TaskPlumbing    TaskType = "plumbing"
	TaskElectrical  TaskType = "electrical"
	TaskOther       TaskType = "other"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskCleaning, TaskWater, TaskMaintenance, TaskPest, TaskPlumbing, TaskElectrical, TaskOther:
		return true
	default:
		return false
	}
}

// Campus buildings a request may be filed against.
const (
	BuildingGirlsHostel = "girls_hostel"
	BuildingBoysOld     = "boys_hostel_old"
	BuildingBoysH1      = "boys_hostel_h1"
	BuildingBoysH2      = "boys_hostel_h2"
	BuildingLHC         = "lhc"
	BuildingRnD         = "rnd"
	BuildingAcademic    = "academic"
	BuildingGuestHouse  = "guest_house"
	BuildingLibrary     = "library"
)

// FloorLimits is the highest floor of each building.
var FloorLimits = map[string]int{
	BuildingGirlsHostel: 6,
	BuildingBoysOld:     7,
	BuildingBoysH1:      11,
	BuildingBoysH2:      11,
	BuildingLHC:         5,
	BuildingRnD:         8,
	BuildingAcademic:    6,
	BuildingGuestHouse:  1,
	BuildingLibrary:     4,
}

// Request is a maintenance ticket filed by a student. AssignedTo and
// AssignedToName point at the worker currently handling it, if any.
type Request struct {
	ID               string
	TaskType         TaskType
	Building         string
	Wing             string
	LocationFloor    int
	Description      string
	Status           Status
	RegistrationTime time.Time
	SubmittedBy      *string
	AssignedTo       *string
	AssignedToName   *string
}
