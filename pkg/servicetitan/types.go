package servicetitan

import "time"

// Job is a ServiceTitan job record as returned by the JPM jobs endpoints.
type Job struct {
	ID               int64      `json:"id"`
	JobNumber        string     `json:"jobNumber"`
	JobStatus        string     `json:"jobStatus"`
	BusinessUnitID   int64      `json:"businessUnitId"`
	BusinessUnitName string     `json:"businessUnitName"`
	JobTypeID        int64      `json:"jobTypeId"`
	JobTypeName      string     `json:"jobTypeName"`
	CustomerID       int64      `json:"customerId"`
	LocationID       int64      `json:"locationId"`
	Summary          string     `json:"summary"`
	Total            *float64   `json:"total"`
	CompletedOn      *time.Time `json:"completedOn"`
	InvoiceID        *int64     `json:"invoiceId"`
}

// Appointment is a scheduled visit for a job.
type Appointment struct {
	ID     int64     `json:"id"`
	JobID  int64     `json:"jobId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
}

// Assignment links a technician to an appointment. The dispatch API returns
// assignments in dispatch order; the first technician is the lead.
type Assignment struct {
	ID             int64  `json:"id"`
	AppointmentID  int64  `json:"appointmentId"`
	JobID          int64  `json:"jobId"`
	TechnicianID   int64  `json:"technicianId"`
	TechnicianName string `json:"technicianName"`
}

// GrossPayItem is a payroll line carrying the hours a technician was
// actually paid for on a job. Paid duration is authoritative for labor
// hours, unlike the scheduled appointment window.
type GrossPayItem struct {
	ID                int64   `json:"id"`
	EmployeeID        int64   `json:"employeeId"`
	JobID             int64   `json:"jobId"`
	PaidDurationHours float64 `json:"paidDurationHours"`
	Date              string  `json:"date"`
}

// Technician is an employee from the settings API.
type Technician struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Active         bool   `json:"active"`
	BusinessUnitID *int64 `json:"businessUnitId"`
}

// BusinessUnit is a billing/operating division (e.g. "HVAC Service",
// "Plumbing Install").
type BusinessUnit struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// JobType describes the kind of work a job represents.
type JobType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Customer is a CRM customer record.
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phoneNumber"`
}

// Location is a CRM service location.
type Location struct {
	ID     int64  `json:"id"`
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Address formats the location as a single line, skipping empty parts.
func (l Location) Address() string {
	parts := []string{l.Street, l.City, l.State, l.Zip}
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}

// Invoice carries the fields the sync reads. The accounting API quotes
// some numeric fields as strings, so anything unused stays undeclared
// rather than risking a decode failure.
type Invoice struct {
	ID          int64      `json:"id"`
	Number      string     `json:"invoiceNumber"`
	InvoiceDate *time.Time `json:"invoiceDate"`
}

// page is the standard ServiceTitan list envelope.
type page[T any] struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasMore  bool `json:"hasMore"`
	Data     []T  `json:"data"`
}
