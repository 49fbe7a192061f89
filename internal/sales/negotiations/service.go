package negotiations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/habitar-ventas/habitar/internal/observability"
	"github.com/habitar-ventas/habitar/internal/sales/clients"
	"github.com/habitar-ventas/habitar/internal/sales/housing"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/internal/shared"
)

// Drafts persists wizard drafts.
type Drafts interface {
	Save(ctx context.Context, d *Draft) error
	Get(ctx context.Context, id uuid.UUID) (*Draft, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Invalidator drops cached views that depend on negotiation state.
type Invalidator interface {
	Bump(ctx context.Context) error
}

type Service struct {
	repo        Repository
	drafts      Drafts
	policy      paymentsources.SumPolicy
	metrics     *observability.Metrics
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// Options configures optional collaborators of the service.
type Options struct {
	Policy      paymentsources.SumPolicy
	Metrics     *observability.Metrics
	Invalidator Invalidator
	Logger      *slog.Logger
	Clock       func() time.Time
}

func NewService(repo Repository, drafts Drafts, opts Options) *Service {
	s := &Service{
		repo:        repo,
		drafts:      drafts,
		policy:      opts.Policy,
		metrics:     opts.Metrics,
		invalidator: opts.Invalidator,
		logger:      opts.Logger,
		now:         opts.Clock,
	}
	if s.policy.WarnBelowPercent.IsZero() {
		s.policy = paymentsources.DefaultSumPolicy
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// OpenDraft starts a wizard for an existing client.
func (s *Service) OpenDraft(ctx context.Context, clientID uuid.UUID) (*Draft, error) {
	if _, err := s.repo.Clients().Get(ctx, clientID); err != nil {
		return nil, fmt.Errorf("open draft: %w", err)
	}
	d := NewDraft(clientID, s.now())
	if err := s.drafts.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	return d, nil
}

func (s *Service) Draft(ctx context.Context, id uuid.UUID) (*Draft, error) {
	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return d, nil
}

// mutate loads a draft, applies fn and saves it back.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(*Draft) error) (*Draft, error) {
	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	d.UpdatedAt = s.now()
	if err := s.drafts.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	return d, nil
}

// UpdateBasics selects the unit and sets discount and notes.
func (s *Service) UpdateBasics(ctx context.Context, id uuid.UUID, req BasicsRequest) (*Draft, error) {
	unit, err := s.repo.Units().GetUnit(ctx, req.UnitID)
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return s.mutate(ctx, id, func(d *Draft) error {
		if d.UnitID == nil || *d.UnitID != unit.ID {
			if !unit.IsAvailable() {
				return housing.ErrUnitUnavailable
			}
			d.SelectUnit(unit.ProjectID, unit.ID, unit.Label(), unit.TotalValue())
		}
		if req.Discount != nil {
			d.SetDiscount(*req.Discount)
		}
		if req.Notes != nil {
			d.Notes = strings.TrimSpace(*req.Notes)
		}
		return nil
	})
}

func (s *Service) ToggleSource(ctx context.Context, id uuid.UUID, kind paymentsources.Kind, enabled bool) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) error {
		if err := d.Sources.EnableSource(kind, enabled); err != nil {
			return err
		}
		d.Touch()
		return nil
	})
}

func (s *Service) PatchSource(ctx context.Context, id uuid.UUID, kind paymentsources.Kind, patch SourcePatch) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) error {
		if err := d.Sources.UpdateSourceConfig(kind, patch); err != nil {
			return err
		}
		d.Touch()
		return nil
	})
}

func (s *Service) Next(ctx context.Context, id uuid.UUID) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) error { return d.Next() })
}

func (s *Service) Back(ctx context.Context, id uuid.UUID) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) error {
		d.Back()
		return nil
	})
}

func (s *Service) GoTo(ctx context.Context, id uuid.UUID, step Step) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) error { return d.GoTo(step) })
}

func (s *Service) CancelDraft(ctx context.Context, id uuid.UUID) error {
	if err := s.drafts.Delete(ctx, id); err != nil {
		return fmt.Errorf("cancel draft: %w", err)
	}
	return nil
}

// Submit re-validates the draft and writes the negotiation with all of its
// sources and its closing process in one transaction. The unit is assigned
// in the same transaction and the draft is deleted afterwards.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*SubmitResult, error) {
	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	check, err := d.SubmitCheck(s.policy)
	if err != nil {
		s.metrics.SubmitRejected()
		return nil, fmt.Errorf("submit: %w", err)
	}
	if d.Step != StepReview {
		s.metrics.SubmitRejected()
		return nil, fmt.Errorf("submit: %w", ErrNotReviewed)
	}

	now := s.now()
	neg := Negotiation{
		ID:              uuid.New(),
		ClientID:        d.ClientID,
		UnitID:          *d.UnitID,
		NegotiatedValue: d.NegotiatedValue,
		Discount:        d.Discount,
		TotalValue:      d.ValueToFinance(),
		State:           StateActive,
		NegotiatedAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if d.Notes != "" {
		notes := d.Notes
		neg.Notes = &notes
	}

	var (
		sources []paymentsources.Source
		steps   []paymentsources.ProcessStep
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.ExistsActive(ctx, neg.ClientID, neg.UnitID)
		if err != nil {
			return err
		}
		if exists {
			return ErrActiveExists
		}
		unit, err := tx.Units().GetUnitForUpdate(ctx, neg.UnitID)
		if err != nil {
			return err
		}
		if !unit.IsAvailable() {
			return housing.ErrUnitUnavailable
		}
		if !unit.TotalValue().Equal(neg.NegotiatedValue) {
			return ErrPriceChanged
		}
		if err := tx.Insert(ctx, neg); err != nil {
			return err
		}
		for _, a := range d.Sources.Allocations() {
			src := paymentsources.NewSource(neg.ID, a)
			src.CreatedAt, src.UpdatedAt = now, now
			if err := tx.Sources().Insert(ctx, src); err != nil {
				return err
			}
			sources = append(sources, src)
		}
		if err := tx.Sources().SyncNegotiationTotals(ctx, neg.ID); err != nil {
			return err
		}
		kinds := make([]paymentsources.Kind, 0, len(sources))
		for _, src := range sources {
			kinds = append(kinds, src.Kind)
		}
		steps = paymentsources.DefaultProcessSteps(neg.ID, kinds)
		for _, st := range steps {
			if err := tx.Sources().InsertProcessStep(ctx, st); err != nil {
				return err
			}
		}
		if err := tx.Units().Assign(ctx, neg.UnitID, neg.ClientID, neg.ID, now); err != nil {
			return err
		}
		if err := tx.Clients().SetState(ctx, neg.ClientID, clients.StateActive); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Action:   "negotiation.created",
			Entity:   "negociacion",
			EntityID: neg.ID.String(),
			Meta: map[string]any{
				"client_id":   neg.ClientID.String(),
				"unit_id":     neg.UnitID.String(),
				"total_value": neg.TotalValue.String(),
				"sources":     len(sources),
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create negotiation: %w", err)
	}

	if err := s.drafts.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "delete submitted draft", slog.String("draft_id", id.String()), slog.Any("error", err))
	}
	s.metrics.NegotiationCreated()
	s.logger.InfoContext(ctx, "negotiation created",
		slog.String("negotiation_id", neg.ID.String()),
		slog.String("client_id", neg.ClientID.String()),
		slog.String("actor", shared.ActorFromContext(ctx)))

	totals := paymentsources.Summarize(sources)
	neg.ApplyTotals(totals)
	return &SubmitResult{
		Negotiation: &Detail{Negotiation: neg, Sources: sources, Totals: totals, Steps: steps},
		Warnings:    check.Warnings,
	}, nil
}

// Get loads a negotiation with its sources and process steps.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	var (
		neg     *Negotiation
		sources []paymentsources.Source
		steps   []paymentsources.ProcessStep
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		neg, err = s.repo.Get(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		sources, err = s.repo.Sources().ListByNegotiation(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		steps, err = s.repo.Sources().ProcessSteps(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get negotiation: %w", err)
	}
	if sources == nil {
		sources = []paymentsources.Source{}
	}
	if steps == nil {
		steps = []paymentsources.ProcessStep{}
	}
	return &Detail{Negotiation: *neg, Sources: sources, Totals: paymentsources.Summarize(sources), Steps: steps}, nil
}

// CompleteProcessStep marks one step of an active negotiation's closing
// process as completed. Completing a disbursement step unlocks registering
// that source's disbursement.
func (s *Service) CompleteProcessStep(ctx context.Context, negotiationID, stepID uuid.UUID) (*paymentsources.ProcessStep, error) {
	var step paymentsources.ProcessStep
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ref, err := tx.Sources().LockNegotiation(ctx, negotiationID)
		if err != nil {
			return err
		}
		if ref.State != string(StateActive) {
			return ErrNotActive
		}
		st, err := tx.Sources().GetProcessStepForUpdate(ctx, stepID)
		if err != nil {
			return err
		}
		if st.NegotiationID != negotiationID {
			return paymentsources.ErrStepNotFound
		}
		if err := paymentsources.CompleteStep(st, s.now()); err != nil {
			return err
		}
		if err := tx.Sources().UpdateProcessStep(ctx, *st); err != nil {
			return err
		}
		step = *st
		return tx.RecordAudit(ctx, shared.AuditLog{
			Action:   "process_step.completed",
			Entity:   "negociacion",
			EntityID: negotiationID.String(),
			Meta:     map[string]any{"step_id": st.ID.String(), "step": st.Name},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("complete process step: %w", err)
	}
	s.logger.InfoContext(ctx, "process step completed",
		slog.String("negotiation_id", negotiationID.String()),
		slog.String("step", step.Name),
		slog.String("actor", shared.ActorFromContext(ctx)))
	return &step, nil
}

func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID) ([]Negotiation, error) {
	if _, err := s.repo.Clients().Get(ctx, clientID); err != nil {
		return nil, fmt.Errorf("list negotiations: %w", err)
	}
	out, err := s.repo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list negotiations: %w", err)
	}
	if out == nil {
		out = []Negotiation{}
	}
	return out, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("negotiation stats: %w", err)
	}
	return st, nil
}

func (s *Service) Suspend(ctx context.Context, id uuid.UUID, reason string) (*Negotiation, error) {
	return s.transition(ctx, id, "negotiation.suspended", func(_ context.Context, _ TxRepository, n *Negotiation, now time.Time) error {
		return n.Suspend(strings.TrimSpace(reason), now)
	})
}

func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*Negotiation, error) {
	return s.transition(ctx, id, "negotiation.reactivated", func(_ context.Context, _ TxRepository, n *Negotiation, now time.Time) error {
		return n.Reactivate(now)
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Negotiation, error) {
	return s.transition(ctx, id, "negotiation.completed", func(_ context.Context, _ TxRepository, n *Negotiation, now time.Time) error {
		return n.Complete(now)
	})
}

// Withdraw closes the negotiation, records the renuncia with the refund owed
// and releases the unit.
func (s *Service) Withdraw(ctx context.Context, id uuid.UUID, reason string) (*Negotiation, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, id, "negotiation.withdrawn", func(ctx context.Context, tx TxRepository, n *Negotiation, now time.Time) error {
		if err := n.Withdraw(reason, now); err != nil {
			return err
		}
		if err := tx.InsertWithdrawal(ctx, NewWithdrawal(*n, reason, now)); err != nil {
			return err
		}
		return tx.Units().Release(ctx, n.UnitID)
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, action string, apply func(context.Context, TxRepository, *Negotiation, time.Time) error) (*Negotiation, error) {
	var updated Negotiation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from := n.State
		if err := apply(ctx, tx, n, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateState(ctx, *n); err != nil {
			return err
		}
		updated = *n
		meta := map[string]any{"from": string(from), "to": string(n.State)}
		if n.Reason != nil {
			meta["reason"] = *n.Reason
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Action:   action,
			Entity:   "negociacion",
			EntityID: id.String(),
			Meta:     meta,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	s.metrics.NegotiationTransition(string(updated.State))
	s.invalidate(ctx)
	return &updated, nil
}

// CompleteFullyPaid marks every active negotiation with no pending balance as completed.
func (s *Service) CompleteFullyPaid(ctx context.Context) (int64, error) {
	ids, err := s.repo.ListCompletable(ctx)
	if err != nil {
		return 0, fmt.Errorf("list completable: %w", err)
	}
	var done int64
	for _, id := range ids {
		if _, err := s.Complete(ctx, id); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrOutstandingBalance) {
				continue
			}
			return done, err
		}
		done++
	}
	return done, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.WarnContext(ctx, "ledger cache bump failed", slog.Any("error", err))
	}
}
