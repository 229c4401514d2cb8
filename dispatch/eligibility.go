package dispatch

import (
	"facilityflow/request"
	"facilityflow/staff"
)

var (
	boysHostels = map[string]bool{
		request.BuildingBoysOld: true,
		request.BuildingBoysH1:  true,
		request.BuildingBoysH2:  true,
	}
	girlsHostels = map[string]bool{
		request.BuildingGirlsHostel: true,
	}
)

// GenderAllowed reports whether a worker of gender g may be sent into
// building. Hostels are restricted to workers of the residents' gender;
// every other building is open to all.
func GenderAllowed(building string, g staff.Gender) bool {
	switch {
	case boysHostels[building]:
		return g == staff.GenderMale
	case girlsHostels[building]:
		return g == staff.GenderFemale
	default:
		return true
	}
}
