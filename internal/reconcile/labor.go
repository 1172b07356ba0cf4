package reconcile

import (
	"math"

	"github.com/christmasair/ops-sync/pkg/servicetitan"
)

// LaborMetrics holds the derived labor fields for one job. Nil means the
// metric could not be computed this run; the store keeps the prior value.
type LaborMetrics struct {
	Hours       *float64
	Cost        *float64
	TechCount   *int
	PrimaryTech *int64
}

// computeLabor derives labor metrics from payroll data when any exists, and
// falls back to the scheduled appointment window only when the job has zero
// timesheet entries. Paid hours are authoritative: appointment math is never
// mixed into a job that has payroll lines.
func computeLabor(items []servicetitan.GrossPayItem, win *ApptWindow, crew []servicetitan.Assignment, rates map[int64]*float64) LaborMetrics {
	var m LaborMetrics

	// The lead on the winning appointment is the primary technician
	// whenever a crew is known.
	if len(crew) > 0 {
		id := crew[0].TechnicianID
		m.PrimaryTech = &id
	}

	if len(items) > 0 {
		return laborFromTimesheets(items, rates, m)
	}
	if win != nil {
		return laborFromWindow(*win, crew, rates, m)
	}
	return m
}

func laborFromTimesheets(items []servicetitan.GrossPayItem, rates map[int64]*float64, m LaborMetrics) LaborMetrics {
	total := 0.0
	hoursByEmp := make(map[int64]float64)
	for _, it := range items {
		total += it.PaidDurationHours
		hoursByEmp[it.EmployeeID] += it.PaidDurationHours
	}

	hours := round2(total)
	count := len(hoursByEmp)
	m.Hours = &hours
	m.TechCount = &count

	// Cost sums only employees with a known rate. A zero sum means no rates
	// were known, which is not the same as free labor: report null instead.
	cost := 0.0
	for emp, h := range hoursByEmp {
		if rate := rates[emp]; rate != nil {
			cost += h * *rate
		}
	}
	if cost > 0 {
		cost = round2(cost)
		m.Cost = &cost
	}

	if m.PrimaryTech == nil {
		id := items[0].EmployeeID
		m.PrimaryTech = &id
	}
	return m
}

func laborFromWindow(win ApptWindow, crew []servicetitan.Assignment, rates map[int64]*float64, m LaborMetrics) LaborMetrics {
	raw := roundQuarter(win.End.Sub(win.Start).Hours())
	if raw <= 0 {
		return m
	}

	techs := distinctTechs(crew)
	if len(techs) == 0 {
		hours := raw
		m.Hours = &hours
		return m
	}

	hours := round2(raw * float64(len(techs)))
	count := len(techs)
	m.Hours = &hours
	m.TechCount = &count

	// All-or-nothing: a partial rate roster would understate cost, so any
	// missing rate yields null rather than a partial sum.
	sumRates := 0.0
	for _, id := range techs {
		rate := rates[id]
		if rate == nil {
			return m
		}
		sumRates += *rate
	}
	cost := round2(raw * sumRates)
	m.Cost = &cost
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// roundQuarter rounds a duration in hours to the nearest quarter hour.
func roundQuarter(h float64) float64 {
	return math.Round(h*4) / 4
}
