package scheduler

import (
	"time"

	"facilityflow/request"
	"facilityflow/staff"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func pendingReq(id string, task request.TaskType, building, wing string, floor int, minutes int) request.Request {
	return request.Request{
		ID:               id,
		TaskType:         task,
		Building:         building,
		Wing:             wing,
		LocationFloor:    floor,
		Status:           request.StatusPending,
		RegistrationTime: baseTime.Add(time.Duration(minutes) * time.Minute),
	}
}

func freeWorker(id string, task request.TaskType, building, wing string, floor int) staff.Worker {
	return staff.Worker{
		ID:                   id,
		Name:                 "worker-" + id,
		TaskType:             task,
		Gender:               staff.GenderMale,
		CurrentBuilding:      building,
		CurrentWing:          wing,
		CurrentLocationFloor: floor,
		Status:               staff.StatusFree,
	}
}

func ids(reqs []request.Request) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return out
}
