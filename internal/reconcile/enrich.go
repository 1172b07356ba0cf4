package reconcile

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/christmasair/ops-sync/internal/store"
	"github.com/christmasair/ops-sync/pkg/servicetitan"
)

// enrich backfills detail fields after the main loop. All failures here are
// best-effort: logged, never added to the run's error list. The non-null
// write rule makes every retry on the next run safe.
func (e *Engine) enrich(ctx context.Context, created []servicetitan.Job, invoices []invoiceTarget) {
	e.enrichContacts(ctx, created)
	e.enrichInvoices(ctx, invoices)
}

// enrichContacts fetches customer and location detail for newly created jobs
// under a hard wall-clock deadline. Tasks settle individually; when the
// deadline fires the rest of the batch is abandoned for this run.
func (e *Engine) enrichContacts(ctx context.Context, created []servicetitan.Job) {
	if len(created) == 0 {
		return
	}

	ectx, cancel := context.WithTimeout(ctx, e.cfg.EnrichTimeout)
	defer cancel()

	// Several jobs often share a customer or location; memoize so each
	// distinct upstream id is fetched once.
	var mu sync.Mutex
	customers := make(map[int64]*servicetitan.Customer)
	locations := make(map[int64]*servicetitan.Location)

	g, gctx := errgroup.WithContext(ectx)
	g.SetLimit(e.cfg.EnrichWorkers)
	for _, job := range created {
		g.Go(func() error {
			enr := store.Enrichment{}

			if job.CustomerID != 0 {
				cust, err := e.lookupCustomer(gctx, job.CustomerID, &mu, customers)
				if err != nil {
					e.log.Warn("customer enrichment failed",
						zap.Int64("job_id", job.ID), zap.Int64("customer_id", job.CustomerID), zap.Error(err))
				} else if cust != nil {
					enr.CustomerName = ptrIf(cust.Name)
					enr.CustomerPhone = ptrIf(cust.Phone)
					enr.CustomerEmail = ptrIf(cust.Email)
				}
			}
			if job.LocationID != 0 {
				loc, err := e.lookupLocation(gctx, job.LocationID, &mu, locations)
				if err != nil {
					e.log.Warn("location enrichment failed",
						zap.Int64("job_id", job.ID), zap.Int64("location_id", job.LocationID), zap.Error(err))
				} else if loc != nil {
					enr.LocationAddress = ptrIf(loc.Address())
				}
			}

			if enr == (store.Enrichment{}) {
				return nil
			}
			if err := e.store.UpdateJobEnrichment(gctx, job.ID, enr); err != nil {
				e.log.Warn("enrichment write failed", zap.Int64("job_id", job.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if errors.Is(ectx.Err(), context.DeadlineExceeded) {
		e.log.Warn("contact enrichment timed out, remaining jobs deferred to next run",
			zap.Int("batch_size", len(created)))
	}
}

func (e *Engine) lookupCustomer(ctx context.Context, id int64, mu *sync.Mutex, cache map[int64]*servicetitan.Customer) (*servicetitan.Customer, error) {
	mu.Lock()
	if c, ok := cache[id]; ok {
		mu.Unlock()
		return c, nil
	}
	mu.Unlock()

	c, err := e.client.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	cache[id] = c
	mu.Unlock()
	return c, nil
}

func (e *Engine) lookupLocation(ctx context.Context, id int64, mu *sync.Mutex, cache map[int64]*servicetitan.Location) (*servicetitan.Location, error) {
	mu.Lock()
	if l, ok := cache[id]; ok {
		mu.Unlock()
		return l, nil
	}
	mu.Unlock()

	l, err := e.client.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	cache[id] = l
	mu.Unlock()
	return l, nil
}

// enrichInvoices backfills invoice number and date for jobs that carry an
// invoice id without a locally-known number. The batch is small by nature
// and runs without a deadline.
func (e *Engine) enrichInvoices(ctx context.Context, targets []invoiceTarget) {
	if len(targets) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.EnrichWorkers)
	for _, t := range targets {
		g.Go(func() error {
			inv, err := e.client.GetInvoice(gctx, t.invoiceID)
			if err != nil {
				e.log.Warn("invoice enrichment failed",
					zap.Int64("job_id", t.jobID), zap.Int64("invoice_id", t.invoiceID), zap.Error(err))
				return nil
			}
			enr := store.Enrichment{
				InvoiceNumber: ptrIf(inv.Number),
				InvoiceDate:   inv.InvoiceDate,
			}
			if err := e.store.UpdateJobEnrichment(gctx, t.jobID, enr); err != nil {
				e.log.Warn("invoice write failed", zap.Int64("job_id", t.jobID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
