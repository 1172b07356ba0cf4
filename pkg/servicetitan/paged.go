package servicetitan

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultPageSize = 200

// paged walks a list endpoint's pages lazily, yielding items one at a
// time. The walk is restartable: each range over the sequence begins again
// at page 1. Iteration stops at the first error, yielded with a zero item.
func paged[T any](ctx context.Context, c *httpClient, endpoint string, query url.Values) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		pageNum := 1
		for {
			q := url.Values{}
			for k, vs := range query {
				q[k] = vs
			}
			q.Set("page", strconv.Itoa(pageNum))
			q.Set("pageSize", strconv.Itoa(defaultPageSize))

			var p page[T]
			if err := c.getJSON(ctx, endpoint, q, &p); err != nil {
				yield(zero, err)
				return
			}

			for _, item := range p.Data {
				if !yield(item, nil) {
					return
				}
			}

			if !p.HasMore || len(p.Data) == 0 {
				return
			}
			pageNum++
		}
	}
}

// collect drains a paged sequence into a slice, returning the first error.
func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

const dateLayout = "2006-01-02T15:04:05Z07:00"

func (c *httpClient) ListBusinessUnits(ctx context.Context) ([]BusinessUnit, error) {
	return collect(paged[BusinessUnit](ctx, c, "business-units", url.Values{"active": {"true"}}))
}

func (c *httpClient) ListJobTypes(ctx context.Context) ([]JobType, error) {
	return collect(paged[JobType](ctx, c, "job-types", nil))
}

func (c *httpClient) ListTechnicians(ctx context.Context) ([]Technician, error) {
	return collect(paged[Technician](ctx, c, "technicians", nil))
}

func (c *httpClient) ListCompletedJobs(ctx context.Context, since, until time.Time) ([]Job, error) {
	return collect(paged[Job](ctx, c, "jobs", url.Values{
		"jobStatus":          {"Completed"},
		"completedOnOrAfter": {since.UTC().Format(dateLayout)},
		"completedBefore":    {until.UTC().Format(dateLayout)},
	}))
}

func (c *httpClient) ListScheduledJobs(ctx context.Context, from, to time.Time) ([]Job, error) {
	return collect(paged[Job](ctx, c, "jobs", url.Values{
		"firstAppointmentStartsOnOrAfter": {from.UTC().Format(dateLayout)},
		"firstAppointmentStartsBefore":    {to.UTC().Format(dateLayout)},
	}))
}

func (c *httpClient) ListAppointments(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return collect(paged[Appointment](ctx, c, "appointments", url.Values{
		"startsOnOrAfter": {from.UTC().Format(dateLayout)},
		"startsBefore":    {to.UTC().Format(dateLayout)},
	}))
}

// assignmentIDChunk bounds the appointmentIds filter length per request.
const assignmentIDChunk = 50

func (c *httpClient) ListAssignments(ctx context.Context, appointmentIDs []int64) ([]Assignment, error) {
	var all []Assignment
	for start := 0; start < len(appointmentIDs); start += assignmentIDChunk {
		end := min(start+assignmentIDChunk, len(appointmentIDs))

		ids := make([]string, 0, end-start)
		for _, id := range appointmentIDs[start:end] {
			ids = append(ids, strconv.FormatInt(id, 10))
		}

		chunk, err := collect(paged[Assignment](ctx, c, "appointment-assignments", url.Values{
			"appointmentIds": {strings.Join(ids, ",")},
		}))
		if err != nil {
			return nil, err
		}
		all = append(all, chunk...)
	}
	return all, nil
}

func (c *httpClient) ListGrossPayItems(ctx context.Context, from, to time.Time) ([]GrossPayItem, error) {
	return collect(paged[GrossPayItem](ctx, c, "gross-pay-items", url.Values{
		"dateOnOrAfter":  {from.UTC().Format("2006-01-02")},
		"dateOnOrBefore": {to.UTC().Format("2006-01-02")},
	}))
}

// getOne fetches a single record by id.
func getOne[T any](ctx context.Context, c *httpClient, endpoint string, id int64) (*T, error) {
	var out T
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%d", endpoint, id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) GetBusinessUnit(ctx context.Context, id int64) (*BusinessUnit, error) {
	return getOne[BusinessUnit](ctx, c, "business-units", id)
}

func (c *httpClient) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	return getOne[Customer](ctx, c, "customers", id)
}

func (c *httpClient) GetLocation(ctx context.Context, id int64) (*Location, error) {
	return getOne[Location](ctx, c, "locations", id)
}

func (c *httpClient) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return getOne[Invoice](ctx, c, "invoices", id)
}
