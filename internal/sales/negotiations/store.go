package negotiations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
)

var ErrDraftNotFound = fmt.Errorf("borrador no encontrado o expirado: %w", httpx.ErrNotFound)

// DraftStore keeps wizard drafts in Redis. Saves overwrite, so the last writer wins.
type DraftStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDraftStore(client *redis.Client, ttl time.Duration) *DraftStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DraftStore{client: client, prefix: "habitar:draft:", ttl: ttl}
}

func (s *DraftStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

// Save writes the draft and refreshes its TTL.
func (s *DraftStore) Save(ctx context.Context, d *Draft) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return s.client.Set(ctx, s.key(d.ID), payload, s.ttl).Err()
}

func (s *DraftStore) Get(ctx context.Context, id uuid.UUID) (*Draft, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	var d Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if d.Sources == nil {
		d.Sources = NewAllocator(d.ValueToFinance())
	}
	return &d, nil
}

func (s *DraftStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.Del(ctx, s.key(id)).Err()
}
