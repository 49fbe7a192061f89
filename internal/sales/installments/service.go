package installments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/habitar-ventas/habitar/internal/observability"
	"github.com/habitar-ventas/habitar/internal/platform/cache"
	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/internal/shared"
)

var ErrKeyReused = fmt.Errorf("%w: la clave de idempotencia ya fue usada en otra operación", httpx.ErrConflict)

type Service struct {
	repo    Repository
	cache   *cache.Versioned
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Options configures optional collaborators. A nil Cache reads the ledger straight from the database.
type Options struct {
	Cache   *cache.Versioned
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
}

func NewService(repo Repository, opts Options) *Service {
	s := &Service{repo: repo, cache: opts.Cache, metrics: opts.Metrics, logger: opts.Logger, now: opts.Clock}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// rows returns every ledger row, through the versioned cache when configured.
func (s *Service) rows(ctx context.Context) ([]LedgerRow, error) {
	if s.cache == nil {
		return s.repo.LedgerRows(ctx)
	}
	key, err := s.cache.Key(ctx, "ledger", "rows")
	if err != nil {
		s.logger.WarnContext(ctx, "ledger cache unavailable", slog.Any("error", err))
		return s.repo.LedgerRows(ctx)
	}
	var rows []LedgerRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (any, error) {
		return s.repo.LedgerRows(ctx)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Ledger returns the filtered rows with their statistics and the project list.
func (s *Service) Ledger(ctx context.Context, f Filter) (*Ledger, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	l := BuildLedger(rows, f, s.now())
	return &l, nil
}

func (s *Service) Stats(ctx context.Context, f Filter) (Breakdown, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return Breakdown{}, fmt.Errorf("load ledger: %w", err)
	}
	return ComputeBreakdown(Apply(rows, f), s.now()), nil
}

// ForNegotiation lists every installment of one negotiation, annulled ones included.
func (s *Service) ForNegotiation(ctx context.Context, negotiationID uuid.UUID) ([]LedgerRow, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	out := []LedgerRow{}
	for _, r := range rows {
		if r.NegotiationID == negotiationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) Export(ctx context.Context, f Filter, w io.Writer) error {
	rows, err := s.rows(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	return WriteXLSX(w, Apply(rows, f))
}

// Warm loads the ledger into the cache and reports how many rows it holds.
func (s *Service) Warm(ctx context.Context) (int, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return 0, fmt.Errorf("warm ledger: %w", err)
	}
	return len(rows), nil
}

func validateRegister(req RegisterRequest, today time.Time) (time.Time, error) {
	fields := map[string]string{}
	if !req.Amount.IsPositive() {
		fields["amount"] = "El monto debe ser mayor a cero"
	}
	if !req.Method.Valid() {
		fields["method"] = "Método de pago inválido"
	}
	paidOn, err := time.Parse("2006-01-02", req.PaidOn)
	switch {
	case err != nil:
		fields["paid_on"] = "Fecha inválida, use el formato AAAA-MM-DD"
	case paidOn.After(today):
		fields["paid_on"] = "La fecha del abono no puede ser futura"
	}
	if len(fields) > 0 {
		return time.Time{}, httpx.FieldErrors(fields)
	}
	return paidOn, nil
}

// Register records an installment, adds it to the source's received amount and
// refreshes the negotiation totals in one transaction. A repeated key returns
// the installment stored by the first request.
func (s *Service) Register(ctx context.Context, negotiationID uuid.UUID, req RegisterRequest, key string) (*RegisterResult, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	paidOn, err := validateRegister(req, today)
	if err != nil {
		return nil, err
	}

	inst := Installment{
		ID:            uuid.New(),
		NegotiationID: negotiationID,
		SourceID:      req.SourceID,
		Amount:        req.Amount,
		PaidOn:        paidOn,
		Method:        req.Method,
		Reference:     trimmed(req.Reference),
		ReceiptURL:    trimmed(req.ReceiptURL),
		Notes:         trimmed(req.Notes),
		RegisteredBy:  shared.ActorFromContext(ctx),
		CreatedAt:     now,
	}
	key = strings.TrimSpace(key)
	if key != "" {
		inst.IdempotencyKey = &key
	}

	var kind paymentsources.Kind
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if key != "" {
			if err := tx.ClaimKey(ctx, key); err != nil {
				return err
			}
		}
		ref, err := tx.Sources().LockNegotiation(ctx, negotiationID)
		if err != nil {
			return err
		}
		if ref.State != "Activa" {
			return ErrNegotiationInactive
		}
		src, err := tx.Sources().GetForUpdate(ctx, req.SourceID)
		if err != nil {
			return err
		}
		if src.NegotiationID != negotiationID {
			return ErrSourceMismatch
		}
		if req.Amount.GreaterThan(src.PendingBalance()) {
			return fmt.Errorf("%w (%s)", ErrExceedsBalance, shared.FormatCOP(src.PendingBalance()))
		}
		steps, err := tx.Sources().ProcessSteps(ctx, negotiationID)
		if err != nil {
			return err
		}
		if err := paymentsources.ValidateDisbursement(src.Kind, steps); err != nil {
			return err
		}
		if err := paymentsources.RegisterReceipt(src, req.Amount, now); err != nil {
			return err
		}
		kind = src.Kind
		if err := tx.Sources().Update(ctx, *src); err != nil {
			return err
		}
		if err := tx.Insert(ctx, inst); err != nil {
			return err
		}
		if err := tx.Sources().SyncNegotiationTotals(ctx, negotiationID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Action:   "installment.registered",
			Entity:   "abono",
			EntityID: inst.ID.String(),
			Meta: map[string]any{
				"negotiation_id": negotiationID.String(),
				"source_id":      src.ID.String(),
				"amount":         req.Amount.String(),
				"method":         string(req.Method),
			},
		})
	})
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return s.replay(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("register installment: %w", err)
	}

	s.metrics.InstallmentRegistered(string(inst.Method), string(kind), inst.Amount.InexactFloat64())
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "installment registered",
		slog.String("installment_id", inst.ID.String()),
		slog.String("negotiation_id", negotiationID.String()),
		slog.String("amount", inst.Amount.String()))
	return &RegisterResult{Installment: &inst}, nil
}

func (s *Service) replay(ctx context.Context, key string) (*RegisterResult, error) {
	existing, err := s.repo.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrKeyReused
	}
	if err != nil {
		return nil, fmt.Errorf("replay installment: %w", err)
	}
	if existing.Annulled() {
		return nil, ErrKeyReused
	}
	return &RegisterResult{Installment: existing, Replayed: true}, nil
}

// Annul marks an installment as annulled and takes its amount back out of
// the source and the negotiation totals. Its idempotency key is released so
// the same payment can be registered again.
func (s *Service) Annul(ctx context.Context, id uuid.UUID, reason string) (*Installment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	now := s.now()
	var annulled Installment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inst.Annulled() {
			return ErrAlreadyAnnulled
		}
		ref, err := tx.Sources().LockNegotiation(ctx, inst.NegotiationID)
		if err != nil {
			return err
		}
		if ref.State != "Activa" && ref.State != "Suspendida" {
			return ErrNegotiationClosed
		}
		src, err := tx.Sources().GetForUpdate(ctx, inst.SourceID)
		if err != nil {
			return err
		}
		paymentsources.ReverseReceipt(src, inst.Amount, now)
		if err := tx.Sources().Update(ctx, *src); err != nil {
			return err
		}
		if err := tx.MarkAnnulled(ctx, id, reason, now); err != nil {
			return err
		}
		if inst.IdempotencyKey != nil {
			if err := tx.ReleaseKey(ctx, id, *inst.IdempotencyKey); err != nil {
				return err
			}
			inst.IdempotencyKey = nil
		}
		if err := tx.Sources().SyncNegotiationTotals(ctx, inst.NegotiationID); err != nil {
			return err
		}
		inst.AnnulledAt = &now
		inst.AnnulReason = &reason
		annulled = *inst
		return tx.RecordAudit(ctx, shared.AuditLog{
			Action:   "installment.annulled",
			Entity:   "abono",
			EntityID: id.String(),
			Meta:     map[string]any{"reason": reason, "amount": inst.Amount.String()},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("annul installment: %w", err)
	}
	s.invalidate(ctx)
	return &annulled, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.WarnContext(ctx, "ledger cache bump failed", slog.Any("error", err))
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
