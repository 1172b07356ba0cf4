package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/christmasair/ops-sync/internal/runlog"
	"github.com/christmasair/ops-sync/internal/store"
	"github.com/christmasair/ops-sync/internal/taxonomy"
	"github.com/christmasair/ops-sync/pkg/servicetitan"
)

// progressEvery controls how often mid-run counters are flushed to the run log.
const progressEvery = 25

// Store is the persistence surface the engine needs.
type Store interface {
	GetJobMeta(ctx context.Context, stJobID int64) (*store.JobMeta, error)
	InsertJob(ctx context.Context, j store.Job) error
	UpdateJob(ctx context.Context, j store.Job) error
	UpdateJobEnrichment(ctx context.Context, stJobID int64, e store.Enrichment) error
	UpsertTechnicians(ctx context.Context, techs []store.TechnicianRow) error
	TechnicianRates(ctx context.Context) (map[int64]*float64, error)
	TradeOverrides(ctx context.Context) (map[string]string, error)
}

// Tracker records run lifecycle events.
type Tracker interface {
	Start(ctx context.Context, runType string) (string, error)
	Progress(ctx context.Context, runID string, processed, created, updated int) error
	Finalize(ctx context.Context, runID string, out runlog.Outcome) error
}

// Config tunes a sync run.
type Config struct {
	HorizonDays   int
	LookbackDays  int
	EnrichTimeout time.Duration
	EnrichWorkers int
	Location      *time.Location
}

// Summary is the outcome of one sync run.
type Summary struct {
	RunID     string   `json:"run_id"`
	Processed int      `json:"jobs_processed"`
	Created   int      `json:"jobs_created"`
	Updated   int      `json:"jobs_updated"`
	Errors    []string `json:"errors,omitempty"`
}

// Engine orchestrates one reconciliation run end to end.
type Engine struct {
	client servicetitan.Client
	store  Store
	runs   Tracker
	cfg    Config
	log    *zap.Logger
}

// New creates an Engine. Zero config fields get working defaults.
func New(client servicetitan.Client, st Store, runs Tracker, cfg Config) *Engine {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 14
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 10 * time.Second
	}
	if cfg.EnrichWorkers <= 0 {
		cfg.EnrichWorkers = 4
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		client: client,
		store:  st,
		runs:   runs,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "reconcile")),
	}
}

// Run executes a full sync run and finalizes it exactly once. A fatal error
// (auth, bulk fetch, roster write) flips the run to failed with the error as
// the sole entry; per-job errors accumulate in the summary while the run
// completes.
func (e *Engine) Run(ctx context.Context, runType string) (*Summary, error) {
	runID, err := e.runs.Start(ctx, runType)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: start run")
	}

	sum := &Summary{RunID: runID}
	e.log.Info("sync run started",
		zap.String("run_id", runID), zap.String("run_type", runType))

	if err := e.execute(ctx, sum); err != nil {
		out := runlog.Outcome{
			Status:    runlog.StatusFailed,
			Processed: sum.Processed,
			Created:   sum.Created,
			Updated:   sum.Updated,
			Errors:    []string{err.Error()},
		}
		if ferr := e.runs.Finalize(ctx, runID, out); ferr != nil {
			e.log.Error("failed to finalize failed run", zap.String("run_id", runID), zap.Error(ferr))
		}
		return sum, err
	}

	out := runlog.Outcome{
		Status:    runlog.StatusCompleted,
		Processed: sum.Processed,
		Created:   sum.Created,
		Updated:   sum.Updated,
		Errors:    sum.Errors,
	}
	if err := e.runs.Finalize(ctx, runID, out); err != nil {
		e.log.Error("failed to finalize run", zap.String("run_id", runID), zap.Error(err))
	}

	e.log.Info("sync run finished",
		zap.String("run_id", runID),
		zap.Int("processed", sum.Processed),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("job_errors", len(sum.Errors)))
	return sum, nil
}

// invoiceTarget is a job whose invoice number needs a backfill fetch.
type invoiceTarget struct {
	jobID     int64
	invoiceID int64
}

func (e *Engine) execute(ctx context.Context, sum *Summary) error {
	now := time.Now()

	var (
		units    []servicetitan.BusinessUnit
		jobTypes []servicetitan.JobType
		techs    []servicetitan.Technician
		win      *windows
	)

	// Reference data and the job/appointment windows are independent reads.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		units, err = e.client.ListBusinessUnits(gctx)
		return eris.Wrap(err, "reconcile: fetch business units")
	})
	g.Go(func() error {
		var err error
		jobTypes, err = e.client.ListJobTypes(gctx)
		return eris.Wrap(err, "reconcile: fetch job types")
	})
	g.Go(func() error {
		var err error
		techs, err = e.client.ListTechnicians(gctx)
		return eris.Wrap(err, "reconcile: fetch technicians")
	})
	g.Go(func() error {
		var err error
		win, err = fetchWindows(gctx, e.client, now, e.cfg.HorizonDays, e.cfg.LookbackDays)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	unitNames := make(map[int64]string, len(units))
	for _, u := range units {
		unitNames[u.ID] = u.Name
	}
	if err := e.store.UpsertTechnicians(ctx, technicianRows(techs, unitNames)); err != nil {
		return err
	}

	rates, err := e.store.TechnicianRates(ctx)
	if err != nil {
		return err
	}
	overrides, err := e.store.TradeOverrides(ctx)
	if err != nil {
		return err
	}

	resolver := taxonomy.NewResolver(units, jobTypes, overrides, e.client)
	resolver.ResolveMissing(ctx, win.jobs)

	// Payroll spans both windows so completed and upcoming jobs each find
	// their timesheet entries.
	payItems, err := e.client.ListGrossPayItems(ctx,
		now.AddDate(0, 0, -e.cfg.LookbackDays), now.AddDate(0, 0, e.cfg.HorizonDays))
	if err != nil {
		return eris.Wrap(err, "reconcile: fetch gross pay items")
	}
	payByJob := make(map[int64][]servicetitan.GrossPayItem)
	for _, it := range payItems {
		payByJob[it.JobID] = append(payByJob[it.JobID], it)
	}

	apptIDs := make([]int64, 0, len(win.appointments))
	for _, a := range win.appointments {
		apptIDs = append(apptIDs, a.ID)
	}
	assigns, err := e.client.ListAssignments(ctx, apptIDs)
	if err != nil {
		return eris.Wrap(err, "reconcile: fetch assignments")
	}
	crews := indexAssignments(win.appointments, assigns)

	sort.Slice(win.jobs, func(i, j int) bool { return win.jobs[i].ID < win.jobs[j].ID })

	// Sequential on purpose: one bad job is isolated, and no two writes
	// race on the same canonical record.
	var created []servicetitan.Job
	var invoices []invoiceTarget
	for _, job := range win.jobs {
		wasCreated, needsInvoice, err := e.reconcileJob(ctx, job, win, resolver, payByJob[job.ID], crews[job.ID], rates)
		sum.Processed++
		if err != nil {
			e.log.Warn("job reconciliation failed", zap.Int64("job_id", job.ID), zap.Error(err))
			sum.Errors = append(sum.Errors, fmt.Sprintf("job %d: %v", job.ID, err))
			continue
		}
		if wasCreated {
			sum.Created++
			created = append(created, job)
		} else {
			sum.Updated++
		}
		if needsInvoice {
			invoices = append(invoices, invoiceTarget{jobID: job.ID, invoiceID: *job.InvoiceID})
		}

		if sum.Processed%progressEvery == 0 {
			if err := e.runs.Progress(ctx, sum.RunID, sum.Processed, sum.Created, sum.Updated); err != nil {
				e.log.Warn("progress update failed", zap.Error(err))
			}
		}
	}

	e.enrich(ctx, created, invoices)
	return nil
}

// reconcileJob builds and persists the canonical record for one job.
func (e *Engine) reconcileJob(
	ctx context.Context,
	job servicetitan.Job,
	win *windows,
	resolver *taxonomy.Resolver,
	payItems []servicetitan.GrossPayItem,
	crew []servicetitan.Assignment,
	rates map[int64]*float64,
) (created, needsInvoice bool, err error) {
	meta, err := e.store.GetJobMeta(ctx, job.ID)
	if err != nil {
		return false, false, err
	}

	// The listing omits names for deactivated units; the job record itself
	// is the fallback before defaulting the trade.
	unitName := resolver.UnitName(job.BusinessUnitID)
	if unitName == nil {
		unitName = ptrIf(job.BusinessUnitName)
	}

	var window *ApptWindow
	var scheduled *string
	if w, ok := win.window[job.ID]; ok {
		window = &w
		s := localDate(w.Start, e.cfg.Location)
		scheduled = &s
	}
	var completed *string
	if job.CompletedOn != nil {
		c := localDate(*job.CompletedOn, e.cfg.Location)
		completed = &c
	}

	metrics := computeLabor(payItems, window, crew, rates)

	rec := store.Job{
		STJobID:          job.ID,
		JobNumber:        job.JobNumber,
		Status:           job.JobStatus,
		Trade:            resolver.ResolveTrade(unitName),
		BusinessUnitID:   ptrIf(job.BusinessUnitID),
		BusinessUnitName: unitName,
		JobTypeName:      firstNonNil(resolver.JobTypeName(job.JobTypeID), ptrIf(job.JobTypeName)),
		CustomerID:       ptrIf(job.CustomerID),
		LocationID:       ptrIf(job.LocationID),
		ScheduledDate:    scheduled,
		CompletedDate:    completed,
		Total:            job.Total,
		InvoiceID:        job.InvoiceID,
		LaborHours:       metrics.Hours,
		LaborCost:        metrics.Cost,
		PrimaryTechID:    metrics.PrimaryTech,
		TechnicianCount:  metrics.TechCount,
		Summary:          ptrIf(job.Summary),
	}

	hasInvoiceNumber := meta != nil && meta.InvoiceNumber != nil
	needsInvoice = job.InvoiceID != nil && !hasInvoiceNumber

	if meta == nil {
		return true, needsInvoice, e.store.InsertJob(ctx, rec)
	}
	return false, needsInvoice, e.store.UpdateJob(ctx, rec)
}

// technicianRows converts the dispatch roster into reference-table rows.
func technicianRows(techs []servicetitan.Technician, unitNames map[int64]string) []store.TechnicianRow {
	rows := make([]store.TechnicianRow, 0, len(techs))
	for _, t := range techs {
		row := store.TechnicianRow{
			STID:           t.ID,
			Name:           t.Name,
			Active:         t.Active,
			BusinessUnitID: t.BusinessUnitID,
		}
		if t.BusinessUnitID != nil {
			if name, ok := unitNames[*t.BusinessUnitID]; ok {
				row.BusinessUnitName = &name
			}
		}
		rows = append(rows, row)
	}
	return rows
}
