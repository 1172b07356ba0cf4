// Package taxonomy classifies jobs by trade and resolves reference names
// for business units and job types.
package taxonomy

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/christmasair/ops-sync/pkg/servicetitan"
)

// Trades recognized by the sync. Anything not recognizably plumbing is HVAC,
// which is the dominant side of the business.
const (
	TradeHVAC     = "hvac"
	TradePlumbing = "plumbing"
)

// Resolver maps ServiceTitan reference IDs to names and trades. It is built
// once per run from the settings endpoints plus the stored override map.
type Resolver struct {
	units     map[int64]string
	jobTypes  map[int64]string
	overrides map[string]string

	client servicetitan.Client
	log    *zap.Logger
}

// NewResolver builds a resolver from reference listings and manual overrides.
// Override keys are exact business unit names; values are trade slugs.
func NewResolver(units []servicetitan.BusinessUnit, jobTypes []servicetitan.JobType, overrides map[string]string, client servicetitan.Client) *Resolver {
	r := &Resolver{
		units:     make(map[int64]string, len(units)),
		jobTypes:  make(map[int64]string, len(jobTypes)),
		overrides: overrides,
		client:    client,
		log:       zap.L().With(zap.String("component", "taxonomy")),
	}
	for _, u := range units {
		r.units[u.ID] = u.Name
	}
	for _, jt := range jobTypes {
		r.jobTypes[jt.ID] = jt.Name
	}
	if r.overrides == nil {
		r.overrides = map[string]string{}
	}
	return r
}

// UnitName returns the business unit name for an ID, or nil when unknown.
func (r *Resolver) UnitName(id int64) *string {
	if name, ok := r.units[id]; ok {
		return &name
	}
	return nil
}

// JobTypeName returns the job type name for an ID, or nil when unknown.
func (r *Resolver) JobTypeName(id int64) *string {
	if name, ok := r.jobTypes[id]; ok {
		return &name
	}
	return nil
}

// ResolveTrade classifies a business unit name into a trade. The manual
// override map wins; otherwise any name containing "plumb" is plumbing and
// everything else is HVAC. An unknown unit (nil name) defaults to HVAC.
func (r *Resolver) ResolveTrade(unitName *string) string {
	if unitName == nil {
		return TradeHVAC
	}
	if trade, ok := r.overrides[*unitName]; ok {
		return trade
	}
	if strings.Contains(strings.ToLower(*unitName), "plumb") {
		return TradePlumbing
	}
	return TradeHVAC
}

// ResolveMissing fetches business units referenced by jobs but absent from
// the listing, which happens when a unit was deactivated upstream. Lookup
// failures are logged and skipped: a missing name only costs trade accuracy
// for that job, never the run.
func (r *Resolver) ResolveMissing(ctx context.Context, jobs []servicetitan.Job) {
	seen := make(map[int64]bool)
	for _, j := range jobs {
		id := j.BusinessUnitID
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := r.units[id]; ok {
			continue
		}

		unit, err := r.client.GetBusinessUnit(ctx, id)
		if err != nil {
			r.log.Warn("business unit lookup failed",
				zap.Int64("business_unit_id", id), zap.Error(err))
			continue
		}
		r.units[id] = unit.Name
	}
}
