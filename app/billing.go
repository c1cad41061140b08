package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/billgate/adapters/metrics"
	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/document"
	"github.com/artpar/billgate/domain/fsm"
	"github.com/artpar/billgate/domain/plan"
	"github.com/artpar/billgate/domain/proration"
	"github.com/artpar/billgate/domain/subscription"
	"github.com/artpar/billgate/ports"
)

const dateFormat = "2006-01-02"

// BillingService runs the billing cycle: it decides what every
// subscription owes, writes the ledger claim, generates document entries
// and hands finished documents to the document service.
type BillingService struct {
	subscriptions  ports.SubscriptionStore
	plans          ports.PlanStore
	customers      ports.CustomerStore
	providers      ports.ProviderStore
	billingLogs    ports.BillingLogStore
	unitsLogs      ports.UnitsLogStore
	documents      ports.DocumentStore
	docs           *DocumentService
	clock          ports.Clock
	idGen          ports.IDGenerator
	metrics        *metrics.Collector
	logger         zerolog.Logger
	workers        int
}

// NewBillingService creates a new billing service. workers bounds the
// number of subscriptions billed concurrently per run.
func NewBillingService(
	subscriptions ports.SubscriptionStore,
	plans ports.PlanStore,
	customers ports.CustomerStore,
	providers ports.ProviderStore,
	billingLogs ports.BillingLogStore,
	unitsLogs ports.UnitsLogStore,
	documents ports.DocumentStore,
	docs *DocumentService,
	clock ports.Clock,
	idGen ports.IDGenerator,
	collector *metrics.Collector,
	logger zerolog.Logger,
	workers int,
) *BillingService {
	if workers < 1 {
		workers = 1
	}
	return &BillingService{
		subscriptions: subscriptions,
		plans:         plans,
		customers:     customers,
		providers:     providers,
		billingLogs:   billingLogs,
		unitsLogs:     unitsLogs,
		documents:     documents,
		docs:          docs,
		clock:         clock,
		idGen:         idGen,
		metrics:       collector,
		logger:        logger,
		workers:       workers,
	}
}

// RunStats summarizes one billing run.
type RunStats struct {
	Subscriptions int
	Billed        int
	Skipped       int
	Errors        int
}

// Run bills every billable subscription as of asOf. Failures are isolated
// per subscription: one bad record is logged and counted, the rest of the
// run proceeds. Running twice with the same asOf bills nothing the second
// time.
func (s *BillingService) Run(ctx context.Context, asOf time.Time) (RunStats, error) {
	started := s.clock.Now()
	subs, err := s.subscriptions.ListBillable(ctx)
	if err != nil {
		return RunStats{}, fmt.Errorf("list billable subscriptions: %w", err)
	}

	var billed, skipped, failures int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			did, err := s.billSubscription(ctx, sub, asOf)
			switch {
			case err != nil:
				atomic.AddInt64(&failures, 1)
				s.logger.Error().Err(err).
					Str("subscription_id", sub.ID).
					Msg("billing subscription failed")
				if s.metrics != nil {
					s.metrics.SubscriptionErrors.Inc()
				}
			case did:
				atomic.AddInt64(&billed, 1)
			default:
				atomic.AddInt64(&skipped, 1)
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures are counted

	stats := RunStats{
		Subscriptions: len(subs),
		Billed:        int(billed),
		Skipped:       int(skipped),
		Errors:        int(failures),
	}
	s.logger.Info().
		Time("as_of", asOf).
		Int("subscriptions", stats.Subscriptions).
		Int("billed", stats.Billed).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Dur("took", s.clock.Now().Sub(started)).
		Msg("billing run finished")
	if s.metrics != nil {
		s.metrics.BillingRunsTotal.Inc()
		s.metrics.BillingRunDuration.Observe(s.clock.Now().Sub(started).Seconds())
	}
	return stats, nil
}

// BillOne bills a single subscription as of asOf, for targeted reruns.
// The bool result reports whether anything was billed.
func (s *BillingService) BillOne(ctx context.Context, subscriptionID string, asOf time.Time) (bool, error) {
	sub, err := s.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	return s.billSubscription(ctx, sub, asOf)
}

func (s *BillingService) billSubscription(ctx context.Context, sub subscription.Subscription, asOf time.Time) (bool, error) {
	p, err := s.plans.Get(ctx, sub.PlanID)
	if err != nil {
		return false, fmt.Errorf("load plan: %w", err)
	}
	features, err := s.plans.Features(ctx, p.ID)
	if err != nil {
		return false, fmt.Errorf("load features: %w", err)
	}
	cust, err := s.customers.Get(ctx, sub.CustomerID)
	if err != nil {
		return false, fmt.Errorf("load customer: %w", err)
	}
	prov, err := s.providers.Get(ctx, p.ProviderID)
	if err != nil {
		return false, fmt.Errorf("load provider: %w", err)
	}

	var last *subscription.BillingLog
	latest, err := s.billingLogs.Latest(ctx, sub.ID)
	switch {
	case err == nil:
		last = &latest
	case errors.Is(err, ports.ErrNotFound):
		// never billed
	default:
		return false, fmt.Errorf("load billing log: %w", err)
	}

	due := subscription.DueWindows(sub, p, last, asOf, s.clock.Now())
	if len(due.Windows) == 0 {
		return false, nil
	}

	entries, total, err := s.buildEntries(ctx, sub, p, features, due.Windows)
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	doc, err := s.draftFor(ctx, cust, prov, p.Currency)
	if err != nil {
		return false, err
	}
	added := make([]string, 0, len(entries))
	for _, e := range entries {
		e.ID = s.idGen.New()
		e.DocumentID = doc.ID
		e.SubscriptionID = sub.ID
		e.CreatedAt = now
		if err := s.documents.AddEntry(ctx, e); err != nil {
			s.removeEntries(ctx, added)
			return false, fmt.Errorf("add entry: %w", err)
		}
		added = append(added, e.ID)
	}

	// The ledger append is the commit point. Until it succeeds the windows
	// are unclaimed, so any failure from here back must take the line items
	// written above out again. Losing the append race means another run
	// billed the windows; that is the idempotency skip.
	claim := subscription.BillingLog{
		ID:                        s.idGen.New(),
		SubscriptionID:            sub.ID,
		BillingDate:               calendar.Truncate(asOf),
		PlanBilledUpTo:            due.PlanBilledUpTo,
		MeteredFeaturesBilledUpTo: due.MeteredBilledUpTo,
		Total:                     total,
		CreatedAt:                 now,
	}
	if err := s.billingLogs.Append(ctx, claim); err != nil {
		s.removeEntries(ctx, added)
		if errors.Is(err, ports.ErrStale) {
			s.logger.Debug().
				Str("subscription_id", sub.ID).
				Time("plan_billed_up_to", due.PlanBilledUpTo).
				Msg("windows already billed by another run")
			return false, nil
		}
		return false, fmt.Errorf("append billing log: %w", err)
	}

	s.logger.Info().
		Str("subscription_id", sub.ID).
		Str("document_id", doc.ID).
		Int("windows", len(due.Windows)).
		Str("total", total.String()).
		Time("plan_billed_up_to", due.PlanBilledUpTo).
		Msg("subscription billed")
	if s.metrics != nil {
		s.metrics.SubscriptionsBilled.Inc()
		for _, w := range due.Windows {
			s.metrics.WindowsBilled.WithLabelValues(string(w.Kind)).Inc()
		}
		amt, _ := total.Float64()
		s.metrics.AmountBilled.WithLabelValues(p.Currency).Add(amt)
	}

	if prov.AutoIssues() {
		if _, err := s.docs.Issue(ctx, doc.ID, calendar.Truncate(asOf)); err != nil {
			return true, fmt.Errorf("auto-issue document: %w", err)
		}
	}

	if due.Final {
		if err := sub.End(now); err != nil {
			return true, err
		}
		if err := s.subscriptions.Update(ctx, sub); err != nil {
			return true, fmt.Errorf("end subscription: %w", err)
		}
		s.logger.Info().Str("subscription_id", sub.ID).Msg("subscription ended after final billing")
	}
	return true, nil
}

// buildEntries turns due windows into document line items. Trial windows
// net to zero through offsetting pairs; plan windows carry the prorated
// interval amount; metered windows charge consumption above the allowance.
func (s *BillingService) buildEntries(ctx context.Context, sub subscription.Subscription, p plan.Plan, features []plan.MeteredFeature, windows []subscription.Window) ([]document.Entry, decimal.Decimal, error) {
	var entries []document.Entry

	for _, w := range windows {
		w := w
		switch w.Kind {
		case subscription.WindowTrial:
			trial, err := s.trialEntries(ctx, sub, p, features, w)
			if err != nil {
				return nil, decimal.Zero, err
			}
			entries = append(entries, trial...)

		case subscription.WindowPlan:
			prorated, fraction := proration.Fraction(w.Start, w.End, p.Interval, p.IntervalCountOrOne())
			amount := p.Amount.Mul(fraction).Round(2)
			entries = append(entries, document.Entry{
				Description: fmt.Sprintf("%s plan subscription (%s - %s)",
					p.Name, w.Start.Format(dateFormat), w.End.Format(dateFormat)),
				Unit:        "subscription",
				UnitPrice:   amount,
				Quantity:    decimal.NewFromInt(1),
				ProductCode: p.ProductCode,
				Prorated:    prorated,
				StartDate:   &w.Start,
				EndDate:     &w.End,
			})

		case subscription.WindowMetered:
			metered, err := s.meteredEntries(ctx, sub, p, features, w)
			if err != nil {
				return nil, decimal.Zero, err
			}
			entries = append(entries, metered...)
		}
	}

	return entries, document.Subtotal(entries), nil
}

// trialEntries produces the zero-sum trial pairs: the plan amount charged
// and discounted, and any metered allowance consumed charged and
// discounted. Consumption beyond the trial allowance is charged for real.
func (s *BillingService) trialEntries(ctx context.Context, sub subscription.Subscription, p plan.Plan, features []plan.MeteredFeature, w subscription.Window) ([]document.Entry, error) {
	var entries []document.Entry

	prorated, fraction := proration.Fraction(w.Start, w.End, p.Interval, p.IntervalCountOrOne())
	base := p.Amount.Mul(fraction).Round(2)
	span := fmt.Sprintf("(%s - %s)", w.Start.Format(dateFormat), w.End.Format(dateFormat))
	one := decimal.NewFromInt(1)

	entries = append(entries,
		document.Entry{
			Description: fmt.Sprintf("%s plan trial %s", p.Name, span),
			Unit:        "subscription",
			UnitPrice:   base,
			Quantity:    one,
			ProductCode: p.ProductCode,
			Prorated:    prorated,
			StartDate:   &w.Start,
			EndDate:     &w.End,
		},
		document.Entry{
			Description: fmt.Sprintf("%s plan trial discount %s", p.Name, span),
			Unit:        "subscription",
			UnitPrice:   base.Neg(),
			Quantity:    one,
			ProductCode: p.ProductCode,
			Prorated:    prorated,
			StartDate:   &w.Start,
			EndDate:     &w.End,
		},
	)

	for _, f := range features {
		consumed, err := s.unitsLogs.Consumed(ctx, f.ID, sub.ID, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("sum consumption for %s: %w", f.ID, err)
		}
		if consumed.IsZero() {
			continue
		}

		free := decimal.Min(consumed, f.IncludedUnitsDuringTrial)
		if free.IsPositive() {
			entries = append(entries,
				document.Entry{
					Description: fmt.Sprintf("%s trial usage %s", f.Name, span),
					Unit:        f.Unit,
					UnitPrice:   f.PricePerUnit,
					Quantity:    free,
					ProductCode: f.ProductCode,
					StartDate:   &w.Start,
					EndDate:     &w.End,
				},
				document.Entry{
					Description: fmt.Sprintf("%s trial usage discount %s", f.Name, span),
					Unit:        f.Unit,
					UnitPrice:   f.PricePerUnit.Neg(),
					Quantity:    free,
					ProductCode: f.ProductCode,
					StartDate:   &w.Start,
					EndDate:     &w.End,
				},
			)
		}

		if over := f.TrialOverage(consumed); over.IsPositive() {
			entries = append(entries, document.Entry{
				Description: fmt.Sprintf("%s usage above trial allowance %s", f.Name, span),
				Unit:        f.Unit,
				UnitPrice:   f.PricePerUnit,
				Quantity:    over,
				ProductCode: f.ProductCode,
				StartDate:   &w.Start,
				EndDate:     &w.End,
			})
		}
	}
	return entries, nil
}

// meteredEntries charges consumption above the included allowance for one
// post-trial window.
func (s *BillingService) meteredEntries(ctx context.Context, sub subscription.Subscription, p plan.Plan, features []plan.MeteredFeature, w subscription.Window) ([]document.Entry, error) {
	var entries []document.Entry
	span := fmt.Sprintf("(%s - %s)", w.Start.Format(dateFormat), w.End.Format(dateFormat))

	for _, f := range features {
		consumed, err := s.unitsLogs.Consumed(ctx, f.ID, sub.ID, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("sum consumption for %s: %w", f.ID, err)
		}
		over := f.Overage(consumed)
		if !over.IsPositive() {
			continue
		}
		entries = append(entries, document.Entry{
			Description: fmt.Sprintf("%s usage %s", f.Name, span),
			Unit:        f.Unit,
			UnitPrice:   f.PricePerUnit,
			Quantity:    over,
			ProductCode: f.ProductCode,
			StartDate:   &w.Start,
			EndDate:     &w.End,
		})
	}
	return entries, nil
}

// draftFor returns the document the entries land on. Consolidated
// customers share one draft per provider and kind; everyone else gets a
// fresh draft per run.
// removeEntries backs line items out of their draft after a failed run.
// Removal failures are logged and left for manual cleanup.
func (s *BillingService) removeEntries(ctx context.Context, entryIDs []string) {
	for _, id := range entryIDs {
		if err := s.documents.DeleteEntry(ctx, id); err != nil {
			s.logger.Error().Err(err).Str("entry_id", id).Msg("remove entry after failed run")
		}
	}
}

func (s *BillingService) draftFor(ctx context.Context, cust account.Customer, prov account.Provider, currency string) (document.Document, error) {
	kind := document.KindInvoice
	if prov.Flow == account.FlowProforma {
		kind = document.KindProforma
	}

	if cust.ConsolidatedBilling {
		doc, err := s.documents.GetDraft(ctx, prov.ID, cust.ID, kind)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ports.ErrNotFound) {
			return document.Document{}, fmt.Errorf("find consolidated draft: %w", err)
		}
	}
	return s.docs.CreateDraft(ctx, prov.ID, cust.ID, currency, kind)
}

// RecordUsage records metered feature consumption for the billed
// sub-window containing at. Relative updates add to any existing log for
// the window; absolute updates replace it. Windows already billed are
// frozen.
func (s *BillingService) RecordUsage(ctx context.Context, subscriptionID, featureID string, units decimal.Decimal, relative bool, at time.Time) error {
	sub, err := s.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	p, err := s.plans.Get(ctx, sub.PlanID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	features, err := s.plans.Features(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load features: %w", err)
	}
	found := false
	for _, f := range features {
		if f.ID == featureID {
			found = true
			break
		}
	}
	if !found {
		return fsm.Validationf("feature %s does not belong to plan %s", featureID, p.ID)
	}

	w, ok := subscription.UsageWindow(sub, p, at)
	if !ok {
		return fsm.Validationf("date %s is outside the billable life of subscription %s",
			at.Format(dateFormat), sub.ID)
	}

	latest, err := s.billingLogs.Latest(ctx, sub.ID)
	if err == nil && !w.End.After(latest.MeteredFeaturesBilledUpTo) {
		return fsm.Validationf("window ending %s is already billed", w.End.Format(dateFormat))
	}
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("load billing log: %w", err)
	}

	now := s.clock.Now()
	return s.unitsLogs.Upsert(ctx, subscription.MeteredFeatureUnitsLog{
		ID:               s.idGen.New(),
		MeteredFeatureID: featureID,
		SubscriptionID:   sub.ID,
		StartDate:        w.Start,
		EndDate:          w.End,
		ConsumedUnits:    units,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, relative)
}
