package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/shared"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Create registers a client. Document numbers are unique across clients.
func (s *Service) Create(ctx context.Context, req CreateClientRequest) (*Client, error) {
	if err := httpx.Validate(req); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(req.DocumentNumber)

	existing, err := s.repo.GetByDocument(ctx, number)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing client: %w", err)
	}
	if existing != nil {
		return nil, httpx.FieldErrors(map[string]string{
			"document_number": fmt.Sprintf("Ya existe un cliente con el documento %s", number),
		})
	}

	now := s.now()
	client := Client{
		ID:             uuid.New(),
		Names:          strings.TrimSpace(req.Names),
		Surnames:       strings.TrimSpace(req.Surnames),
		DocumentType:   req.DocumentType,
		DocumentNumber: number,
		Phone:          req.Phone,
		Email:          req.Email,
		State:          StateInterested,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	s.logger.InfoContext(ctx, "client created",
		slog.String("client_id", client.ID.String()),
		slog.String("actor", shared.ActorFromContext(ctx)))
	return &client, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, req ListClientsRequest) ([]Client, shared.Pagination, error) {
	page := shared.NewPagination(req.Page, req.PerPage, 0)
	req.Page, req.PerPage = page.Page, page.PerPage
	req.Search = strings.TrimSpace(req.Search)

	clients, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list clients: %w", err)
	}
	if clients == nil {
		clients = []Client{}
	}
	return clients, shared.NewPagination(req.Page, req.PerPage, total), nil
}
