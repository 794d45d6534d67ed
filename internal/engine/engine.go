// Package engine owns the checkout session lifecycle: it validates
// requests against the catalog, runs the extension pipeline on every
// transition, and commits snapshots to the session store. Failed
// operations never mutate stored state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltanReisoglu/UCP-AGENT/internal/catalog"
	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
	"github.com/AltanReisoglu/UCP-AGENT/internal/pipeline"
	"github.com/AltanReisoglu/UCP-AGENT/internal/store"
)

// Config is the process-wide merchant configuration, constructed once
// at startup and never mutated.
type Config struct {
	Currency            string
	ConsentRequired     bool
	FulfillmentRequired bool
	OrderPermalinkBase  string
}

// Listener is notified after every committed mutation. Implementations
// must not block; the per-session lock is still held during the call.
type Listener interface {
	OnSessionChange(session *domain.CheckoutSession)
}

// Result is the outcome of a successful mutating operation: the
// committed snapshot plus any non-fatal warnings from the pipeline.
type Result struct {
	Session  *domain.CheckoutSession
	Warnings []pipeline.Warning
}

// CompleteResult additionally carries the order produced on completion.
type CompleteResult struct {
	Order    *domain.Order
	Session  *domain.CheckoutSession
	Warnings []pipeline.Warning
}

type Engine struct {
	catalog  catalog.Catalog
	store    store.SessionStore
	pipeline *pipeline.Pipeline
	cfg      Config
	locks    *keyedMutex

	mu        sync.RWMutex
	listeners []Listener
}

func New(cat catalog.Catalog, sessions store.SessionStore, pipe *pipeline.Pipeline, cfg Config) *Engine {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Engine{
		catalog:  cat,
		store:    sessions,
		pipeline: pipe,
		cfg:      cfg,
		locks:    newKeyedMutex(),
	}
}

func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) notify(session *domain.CheckoutSession) {
	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()

	for _, l := range listeners {
		l.OnSessionChange(session.Clone())
	}
}

// Create opens a new checkout session for the given items. Product ids
// are validated against the catalog and unit prices snapshotted.
func (e *Engine) Create(ctx context.Context, items []domain.ItemInput) (*Result, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", ErrValidation)
	}

	now := time.Now().UTC()
	session := &domain.CheckoutSession{
		ID:        uuid.New().String(),
		Status:    domain.CheckoutStatusOpen,
		Currency:  e.cfg.Currency,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, item := range items {
		if err := e.setLineItem(ctx, session, item.ProductID, item.Quantity, true); err != nil {
			return nil, err
		}
	}

	pc := &pipeline.Context{Phase: pipeline.PhaseUpdate}
	if err := e.pipeline.Run(ctx, session, pc); err != nil {
		return nil, mapStageError(err)
	}
	session.RecomputeTotals()

	if err := e.store.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("store checkout session: %w", err)
	}
	log.Printf("checkout created id=%v subtotal=%v", session.ID, session.Totals.Subtotal)

	e.notify(session)
	return &Result{Session: session.Clone(), Warnings: pc.Warnings}, nil
}

// Get is a pure read: no pipeline execution, no locking against
// in-flight mutations.
func (e *Engine) Get(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	session, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkout session: %w", err)
	}
	return session, nil
}

// Update applies a partial mutation and runs the Consent, Discount and
// Fulfillment stages (the Mandate stage tears down any stale mandate).
func (e *Engine) Update(ctx context.Context, id string, patch *domain.UpdatePatch, expectedVersion *int64) (*Result, error) {
	if patch == nil {
		return nil, fmt.Errorf("%w: empty patch", ErrValidation)
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	current, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return nil, fmt.Errorf("%w: expected version %d, have %d", ErrConflict, *expectedVersion, current.Version)
	}
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: checkout is %s", ErrInvalidState, current.Status)
	}

	work := current.Clone()
	for _, item := range patch.Items {
		if err := e.setLineItem(ctx, work, item.ProductID, item.Quantity, false); err != nil {
			return nil, err
		}
	}
	if patch.Buyer != nil {
		b := *patch.Buyer
		work.Buyer = &b
	}

	pc := &pipeline.Context{Phase: pipeline.PhaseUpdate, Patch: patch}
	if err := e.pipeline.Run(ctx, work, pc); err != nil {
		return nil, mapStageError(err)
	}
	work.RecomputeTotals()

	work.Version = current.Version + 1
	work.UpdatedAt = time.Now().UTC()

	if err := e.store.Put(ctx, work); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("store checkout session: %w", err)
	}

	e.notify(work)
	return &Result{Session: work.Clone(), Warnings: pc.Warnings}, nil
}

// Complete finalizes the checkout: requirements are checked, discounts
// re-evaluated against the final contents, the mandate signed, and the
// order emitted exactly once. Retrying against a completed session
// returns the original order without bumping the version.
func (e *Engine) Complete(ctx context.Context, id string, expectedVersion *int64) (*CompleteResult, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	current, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status == domain.CheckoutStatusCompleted {
		if current.Order == nil {
			return nil, fmt.Errorf("%w: completed checkout has no order", ErrInvalidState)
		}
		return &CompleteResult{Order: current.Order, Session: current}, nil
	}
	if current.Status == domain.CheckoutStatusCanceled {
		return nil, fmt.Errorf("%w: checkout is canceled", ErrInvalidState)
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return nil, fmt.Errorf("%w: expected version %d, have %d", ErrConflict, *expectedVersion, current.Version)
	}

	if e.cfg.ConsentRequired && !current.ConsentSatisfied() {
		return nil, fmt.Errorf("%w: transaction consent has not been granted", ErrIncompleteRequirements)
	}
	if e.cfg.FulfillmentRequired && !current.FulfillmentResolved() {
		return nil, fmt.Errorf("%w: no fulfillment option selected", ErrIncompleteRequirements)
	}

	work := current.Clone()
	pc := &pipeline.Context{Phase: pipeline.PhaseComplete}
	if err := e.pipeline.Run(ctx, work, pc); err != nil {
		return nil, mapStageError(err)
	}
	work.RecomputeTotals()

	if !domain.CanTransitionTo(work.Status, domain.CheckoutStatusCompleted) {
		return nil, fmt.Errorf("%w: cannot complete from %s", ErrInvalidState, work.Status)
	}
	if work.Mandate == nil {
		return nil, fmt.Errorf("%w: no mandate attached after signing stage", ErrSigning)
	}
	work.Status = domain.CheckoutStatusCompleted
	work.SubStatus = ""

	now := time.Now().UTC()
	order := &domain.Order{
		ID:            uuid.New().String(),
		CheckoutID:    work.ID,
		Snapshot:      work.Clone(),
		MandateDigest: work.Mandate.Digest,
		CompletedAt:   now,
	}
	if e.cfg.OrderPermalinkBase != "" {
		order.PermalinkURL = fmt.Sprintf("%s/orders/%s", e.cfg.OrderPermalinkBase, order.ID)
	}
	work.Order = order

	work.Version = current.Version + 1
	work.UpdatedAt = now

	if err := e.store.Put(ctx, work); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("store checkout session: %w", err)
	}
	log.Printf("checkout completed id=%v order=%v total=%v", work.ID, order.ID, work.Totals.GrandTotal)

	e.notify(work)
	return &CompleteResult{Order: order, Session: work.Clone(), Warnings: pc.Warnings}, nil
}

// Cancel moves an open checkout to the canceled terminal state.
// Canceling an already-canceled session is a no-op; a completed order
// cannot be canceled through this path.
func (e *Engine) Cancel(ctx context.Context, id string, expectedVersion *int64) (*Result, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	current, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status == domain.CheckoutStatusCanceled {
		return &Result{Session: current}, nil
	}
	if current.Status == domain.CheckoutStatusCompleted {
		return nil, fmt.Errorf("%w: completed checkout cannot be canceled", ErrInvalidState)
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return nil, fmt.Errorf("%w: expected version %d, have %d", ErrConflict, *expectedVersion, current.Version)
	}

	work := current.Clone()
	work.Status = domain.CheckoutStatusCanceled
	work.SubStatus = ""
	work.Mandate = nil
	work.Version = current.Version + 1
	work.UpdatedAt = time.Now().UTC()

	if err := e.store.Put(ctx, work); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("store checkout session: %w", err)
	}
	log.Printf("checkout canceled id=%v", work.ID)

	e.notify(work)
	return &Result{Session: work.Clone()}, nil
}

// setLineItem sets the absolute quantity of a product on the session.
// Quantities at or below zero remove the line item entirely. New items
// snapshot the current catalog price; existing items keep theirs.
func (e *Engine) setLineItem(ctx context.Context, s *domain.CheckoutSession, productID string, quantity int32, creating bool) error {
	if productID == "" {
		return fmt.Errorf("%w: line item is missing a product id", ErrValidation)
	}
	if creating && quantity <= 0 {
		return fmt.Errorf("%w: quantity for product %q must be positive", ErrValidation, productID)
	}

	if quantity <= 0 {
		for i, li := range s.LineItems {
			if li.ProductID == productID {
				s.LineItems = append(s.LineItems[:i], s.LineItems[i+1:]...)
				return nil
			}
		}
		return nil
	}

	product, err := e.catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return fmt.Errorf("%w: unknown product %q", ErrValidation, productID)
		}
		return fmt.Errorf("catalog lookup: %w", err)
	}

	// Availability is checked against the quantity the line item will
	// hold after this call, so repeated inputs for the same product
	// cannot add past the limit.
	existing := -1
	total := quantity
	for i, li := range s.LineItems {
		if li.ProductID == productID {
			existing = i
			if creating {
				total = li.Quantity + quantity
			}
			break
		}
	}
	if product.Available != nil && total > *product.Available {
		return fmt.Errorf("%w: only %d of product %q available", ErrValidation, *product.Available, productID)
	}

	if existing >= 0 {
		s.LineItems[existing].Quantity = total
		return nil
	}

	s.LineItems = append(s.LineItems, domain.LineItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		UnitPrice:   product.Price,
	})
	return nil
}

// mapStageError converts pipeline failures into the engine taxonomy.
func mapStageError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrInvalidConsentScope),
		errors.Is(err, pipeline.ErrInvalidFulfillmentOption),
		errors.Is(err, pipeline.ErrFulfillmentNeedsAddress):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	case errors.Is(err, pipeline.ErrMandateSigningUnavailable):
		return fmt.Errorf("%w: %v", ErrSigning, err)
	default:
		return err
	}
}
