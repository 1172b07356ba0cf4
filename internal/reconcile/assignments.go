package reconcile

import (
	"github.com/christmasair/ops-sync/pkg/servicetitan"
)

// indexAssignments maps each job to the technician crew of exactly one of
// its appointments. When a job has several staffed appointments, the one
// with the latest scheduled start wins, so reconciliation reflects the most
// recent dispatch decision rather than iteration order.
func indexAssignments(appts []servicetitan.Appointment, assigns []servicetitan.Assignment) map[int64][]servicetitan.Assignment {
	apptByID := make(map[int64]servicetitan.Appointment, len(appts))
	for _, a := range appts {
		apptByID[a.ID] = a
	}

	byAppt := make(map[int64][]servicetitan.Assignment)
	for _, as := range assigns {
		byAppt[as.AppointmentID] = append(byAppt[as.AppointmentID], as)
	}

	winner := make(map[int64]int64) // jobID -> winning appointmentID
	crews := make(map[int64][]servicetitan.Assignment)
	for apptID, crew := range byAppt {
		appt, ok := apptByID[apptID]
		if !ok {
			continue
		}
		cur, has := winner[appt.JobID]
		if has && !apptByID[cur].Start.Before(appt.Start) {
			continue
		}
		winner[appt.JobID] = apptID
		crews[appt.JobID] = crew
	}
	return crews
}

// distinctTechs returns the unique technician ids in crew order.
func distinctTechs(crew []servicetitan.Assignment) []int64 {
	seen := make(map[int64]bool, len(crew))
	var ids []int64
	for _, as := range crew {
		if seen[as.TechnicianID] {
			continue
		}
		seen[as.TechnicianID] = true
		ids = append(ids, as.TechnicianID)
	}
	return ids
}
