package clients

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
)

var (
	ErrNotFound          = fmt.Errorf("cliente no encontrado: %w", httpx.ErrNotFound)
	ErrDuplicateDocument = fmt.Errorf("documento ya registrado: %w", httpx.ErrDuplicate)
)

const (
	StateInterested = "Interesado"
	StateActive     = "Activo"
	StateInactive   = "Inactivo"
)

type Client struct {
	ID             uuid.UUID `json:"id"`
	Names          string    `json:"names"`
	Surnames       string    `json:"surnames"`
	DocumentType   string    `json:"document_type"`
	DocumentNumber string    `json:"document_number"`
	Phone          *string   `json:"phone,omitempty"`
	Email          *string   `json:"email,omitempty"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (c Client) FullName() string {
	return strings.TrimSpace(c.Names + " " + c.Surnames)
}
