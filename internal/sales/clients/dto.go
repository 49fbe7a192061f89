package clients

type CreateClientRequest struct {
	Names          string  `json:"names" validate:"required,max=100"`
	Surnames       string  `json:"surnames" validate:"required,max=100"`
	DocumentType   string  `json:"document_type" validate:"required,oneof=CC CE TI NIT PP PEP"`
	DocumentNumber string  `json:"document_number" validate:"required,max=20"`
	Phone          *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email          *string `json:"email,omitempty" validate:"omitempty,email"`
}

type ListClientsRequest struct {
	Search  string
	State   string
	Page    int
	PerPage int
}
