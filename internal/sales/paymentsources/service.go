package paymentsources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/shared"
)

// negotiation states that still accept source changes
const (
	negotiationActive    = "Activa"
	negotiationSuspended = "Suspendida"
)

// Service applies the source lifecycle rules to persisted sources.
type Service struct {
	repo   Repository
	policy SumPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository, policy SumPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.WarnBelowPercent.IsZero() {
		policy = DefaultSumPolicy
	}
	return &Service{repo: repo, policy: policy, logger: logger, now: time.Now}
}

// List returns the sources of a negotiation with totals.
func (s *Service) List(ctx context.Context, negotiationID uuid.UUID) (*NegotiationSources, error) {
	sources, err := s.repo.ListByNegotiation(ctx, negotiationID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return buildView(sources, nil), nil
}

// Documents reports the documents a source still lacks.
func (s *Service) Documents(ctx context.Context, id uuid.UUID) (DocumentCheck, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return DocumentCheck{}, fmt.Errorf("get source: %w", err)
	}
	return RequiredDocuments(*src), nil
}

// Update edits one source. An amount change must respect the edit mode and
// keep the negotiation's sources summing to its total value.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateSourceRequest) (*Source, error) {
	var updated Source
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		src, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		neg, err := lockEditable(ctx, repo, src.NegotiationID)
		if err != nil {
			return err
		}

		if req.Amount != nil && !req.Amount.Equal(src.ApprovedAmount) {
			if msgs := ValidateEdit(*src, *req.Amount); len(msgs) > 0 {
				return httpx.MessageErrors(msgs...)
			}
			current, err := repo.ListByNegotiation(ctx, src.NegotiationID)
			if err != nil {
				return err
			}
			proposed := make([]Allocation, 0, len(current))
			for _, c := range current {
				a := allocationOf(c)
				if c.ID == src.ID {
					a.Amount = *req.Amount
				}
				proposed = append(proposed, a)
			}
			if err := s.policy.ValidateConfiguration(current, proposed, neg.TotalValue).Err(); err != nil {
				return err
			}
			src.ApprovedAmount = *req.Amount
			src.refreshState(s.now())
		}
		if req.Entity != nil {
			src.Entity = req.Entity
		}
		if req.Reference != nil {
			src.Reference = req.Reference
		}
		if req.ApprovalLetterURL != nil {
			src.ApprovalLetterURL = req.ApprovalLetterURL
		}

		if err := repo.Update(ctx, *src); err != nil {
			return err
		}
		if err := repo.SyncNegotiationTotals(ctx, src.NegotiationID); err != nil {
			return err
		}
		updated = *src
		return repo.RecordAudit(ctx, shared.AuditLog{
			Action:   "source.updated",
			Entity:   "fuente_pago",
			EntityID: src.ID.String(),
			Meta:     map[string]any{"kind": string(src.Kind), "approved": src.ApprovedAmount.String()},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("update source: %w", err)
	}
	return &updated, nil
}

// Reconfigure replaces a negotiation's sources. Kinds absent from the request
// are deleted, which fails for any that already received money.
func (s *Service) Reconfigure(ctx context.Context, negotiationID uuid.UUID, req ReconfigureRequest) (*NegotiationSources, error) {
	var (
		result []Source
		check  SumCheck
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		neg, err := lockEditable(ctx, repo, negotiationID)
		if err != nil {
			return err
		}
		current, err := repo.ListByNegotiation(ctx, negotiationID)
		if err != nil {
			return err
		}

		fields := map[string]string{}
		for _, a := range req.Sources {
			for field, msg := range ValidateAllocation(a, neg.TotalValue) {
				fields[string(a.Kind)+"."+field] = msg
			}
		}
		if len(fields) > 0 {
			return httpx.FieldErrors(fields)
		}

		check = s.policy.ValidateConfiguration(current, req.Sources, neg.TotalValue)
		if err := check.Err(); err != nil {
			return err
		}

		now := s.now()
		for _, c := range current {
			next, ok := findAllocation(req.Sources, c.Kind)
			if !ok {
				if err := CanDelete(c); err != nil {
					return fmt.Errorf("%s: %w", c.Kind, err)
				}
				if err := repo.Delete(ctx, c.ID); err != nil {
					return err
				}
				continue
			}
			c.ApprovedAmount = next.Amount
			c.Entity = next.Entity
			c.Reference = next.Reference
			c.ApprovalLetterURL = next.ApprovalLetterURL
			c.refreshState(now)
			if err := repo.Update(ctx, c); err != nil {
				return err
			}
		}
		var added []Kind
		for _, a := range req.Sources {
			if _, exists := findSource(current, a.Kind); exists {
				continue
			}
			if err := repo.Insert(ctx, NewSource(negotiationID, a)); err != nil {
				return err
			}
			added = append(added, a.Kind)
		}
		if err := addDisbursementSteps(ctx, repo, negotiationID, added); err != nil {
			return err
		}
		if err := repo.SyncNegotiationTotals(ctx, negotiationID); err != nil {
			return err
		}
		if result, err = repo.ListByNegotiation(ctx, negotiationID); err != nil {
			return err
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			Action:   "sources.reconfigured",
			Entity:   "negociacion",
			EntityID: negotiationID.String(),
			Meta:     map[string]any{"sources": len(req.Sources)},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reconfigure sources: %w", err)
	}
	return buildView(result, check.Warnings), nil
}

// addDisbursementSteps appends the gating step of each newly added kind that
// the negotiation's process does not have yet.
func addDisbursementSteps(ctx context.Context, repo Repository, negotiationID uuid.UUID, kinds []Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	steps, err := repo.ProcessSteps(ctx, negotiationID)
	if err != nil {
		return err
	}
	have := map[string]bool{}
	order := 0
	for _, st := range steps {
		have[st.Name] = true
		order = max(order, st.Order)
	}
	for _, k := range kinds {
		name := DisbursementStep(k)
		if name == "" || have[name] {
			continue
		}
		order++
		st := ProcessStep{ID: uuid.New(), NegotiationID: negotiationID, Name: name, Order: order, State: StepPending}
		if err := repo.InsertProcessStep(ctx, st); err != nil {
			return err
		}
		have[name] = true
	}
	return nil
}

// Delete removes a source that never received money.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		src, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := CanDelete(*src); err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		if err := repo.SyncNegotiationTotals(ctx, src.NegotiationID); err != nil {
			return err
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			Action:   "source.deleted",
			Entity:   "fuente_pago",
			EntityID: id.String(),
			Meta:     map[string]any{"kind": string(src.Kind), "negotiation_id": src.NegotiationID.String()},
		})
	})
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	s.logger.Info("payment source deleted", slog.String("source_id", id.String()))
	return nil
}

func lockEditable(ctx context.Context, repo Repository, negotiationID uuid.UUID) (*NegotiationRef, error) {
	neg, err := repo.LockNegotiation(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if neg.State != negotiationActive && neg.State != negotiationSuspended {
		return nil, fmt.Errorf("%w: la negociación está %s", httpx.ErrConflict, neg.State)
	}
	return neg, nil
}

func allocationOf(s Source) Allocation {
	return Allocation{
		Kind:              s.Kind,
		Amount:            s.ApprovedAmount,
		Entity:            s.Entity,
		Reference:         s.Reference,
		ApprovalLetterURL: s.ApprovalLetterURL,
	}
}

func findSource(sources []Source, kind Kind) (Source, bool) {
	for _, s := range sources {
		if s.Kind == kind {
			return s, true
		}
	}
	return Source{}, false
}

func buildView(sources []Source, warnings []string) *NegotiationSources {
	views := make([]SourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, newSourceView(src))
	}
	return &NegotiationSources{Sources: views, Totals: Summarize(sources), Warnings: warnings}
}

