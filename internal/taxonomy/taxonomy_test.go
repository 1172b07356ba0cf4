package taxonomy

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christmasair/ops-sync/pkg/servicetitan"
)

// stubClient implements servicetitan.Client; only GetBusinessUnit is wired.
type stubClient struct {
	units map[int64]*servicetitan.BusinessUnit
	calls int
}

func (s *stubClient) GetBusinessUnit(_ context.Context, id int64) (*servicetitan.BusinessUnit, error) {
	s.calls++
	if u, ok := s.units[id]; ok {
		return u, nil
	}
	return nil, eris.Errorf("business unit %d not found", id)
}

func (s *stubClient) ListBusinessUnits(context.Context) ([]servicetitan.BusinessUnit, error) {
	return nil, nil
}
func (s *stubClient) ListJobTypes(context.Context) ([]servicetitan.JobType, error) { return nil, nil }
func (s *stubClient) ListTechnicians(context.Context) ([]servicetitan.Technician, error) {
	return nil, nil
}
func (s *stubClient) ListCompletedJobs(context.Context, time.Time, time.Time) ([]servicetitan.Job, error) {
	return nil, nil
}
func (s *stubClient) ListScheduledJobs(context.Context, time.Time, time.Time) ([]servicetitan.Job, error) {
	return nil, nil
}
func (s *stubClient) ListAppointments(context.Context, time.Time, time.Time) ([]servicetitan.Appointment, error) {
	return nil, nil
}
func (s *stubClient) ListAssignments(context.Context, []int64) ([]servicetitan.Assignment, error) {
	return nil, nil
}
func (s *stubClient) ListGrossPayItems(context.Context, time.Time, time.Time) ([]servicetitan.GrossPayItem, error) {
	return nil, nil
}
func (s *stubClient) GetCustomer(context.Context, int64) (*servicetitan.Customer, error) {
	return nil, nil
}
func (s *stubClient) GetLocation(context.Context, int64) (*servicetitan.Location, error) {
	return nil, nil
}
func (s *stubClient) GetInvoice(context.Context, int64) (*servicetitan.Invoice, error) {
	return nil, nil
}

func ptr[T any](v T) *T { return &v }

func TestResolveTrade_PlumbSubstring(t *testing.T) {
	r := NewResolver(nil, nil, nil, &stubClient{})

	assert.Equal(t, TradePlumbing, r.ResolveTrade(ptr("Plumbing Service")))
	assert.Equal(t, TradePlumbing, r.ResolveTrade(ptr("Drain & PLUMB Repair")))
	assert.Equal(t, TradeHVAC, r.ResolveTrade(ptr("HVAC Install")))
	assert.Equal(t, TradeHVAC, r.ResolveTrade(ptr("Electrical")))
	assert.Equal(t, TradeHVAC, r.ResolveTrade(nil))
}

func TestResolveTrade_OverrideWins(t *testing.T) {
	overrides := map[string]string{
		"Drain Pros":   TradePlumbing, // no "plumb" in the name
		"Plumbing Ops": TradeHVAC,     // office counts this unit as HVAC
	}
	r := NewResolver(nil, nil, overrides, &stubClient{})

	assert.Equal(t, TradePlumbing, r.ResolveTrade(ptr("Drain Pros")))
	assert.Equal(t, TradeHVAC, r.ResolveTrade(ptr("Plumbing Ops")))
}

func TestUnitAndJobTypeNames(t *testing.T) {
	r := NewResolver(
		[]servicetitan.BusinessUnit{{ID: 7, Name: "HVAC Service"}},
		[]servicetitan.JobType{{ID: 3, Name: "No Cool"}},
		nil, &stubClient{},
	)

	require.NotNil(t, r.UnitName(7))
	assert.Equal(t, "HVAC Service", *r.UnitName(7))
	assert.Nil(t, r.UnitName(8))
	require.NotNil(t, r.JobTypeName(3))
	assert.Equal(t, "No Cool", *r.JobTypeName(3))
	assert.Nil(t, r.JobTypeName(4))
}

func TestResolveMissing_LooksUpDeactivatedUnit(t *testing.T) {
	stub := &stubClient{units: map[int64]*servicetitan.BusinessUnit{
		99: {ID: 99, Name: "Legacy Plumbing", Active: false},
	}}
	r := NewResolver([]servicetitan.BusinessUnit{{ID: 7, Name: "HVAC Service"}}, nil, nil, stub)

	jobs := []servicetitan.Job{
		{ID: 1, BusinessUnitID: 7},  // known, no lookup
		{ID: 2, BusinessUnitID: 99}, // deactivated, point lookup
		{ID: 3, BusinessUnitID: 99}, // duplicate, cached
		{ID: 4, BusinessUnitID: 0},  // unset, skipped
	}
	r.ResolveMissing(context.Background(), jobs)

	assert.Equal(t, 1, stub.calls)
	require.NotNil(t, r.UnitName(99))
	assert.Equal(t, "Legacy Plumbing", *r.UnitName(99))
	assert.Equal(t, TradePlumbing, r.ResolveTrade(r.UnitName(99)))
}

func TestResolveMissing_LookupFailureIsSoft(t *testing.T) {
	stub := &stubClient{}
	r := NewResolver(nil, nil, nil, stub)

	r.ResolveMissing(context.Background(), []servicetitan.Job{{ID: 1, BusinessUnitID: 55}})

	assert.Equal(t, 1, stub.calls)
	assert.Nil(t, r.UnitName(55))
	assert.Equal(t, TradeHVAC, r.ResolveTrade(r.UnitName(55)))
}
