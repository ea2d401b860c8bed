package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/orgsync/internal/identity"
)

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest, actor identity.Actor) (*Organization, error)
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetByRegistryNumber(ctx context.Context, registryNumber string) (*Organization, error)
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
	UpdateStatus(ctx context.Context, id string, status string, actor identity.Actor) (*Organization, error)
	ListUsers(ctx context.Context, id string) ([]string, error)
	Delete(ctx context.Context, id string, actor identity.Actor) error
}

type CreateOrganizationRequest struct {
	Name           string
	RegistryNumber string
	ContactEmail   string
	CompanySize    int
	YearFounded    int
}

type SearchRequest struct {
	Name        string
	YearFounded int
	MinSize     int
	MaxSize     int
	Page        int
	Size        int
}

type SearchResult struct {
	Items []Organization `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

var (
	ErrNotFound           = errors.New("organization_not_found")
	ErrInvalidID          = errors.New("invalid_organization_id")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidRegistry    = errors.New("invalid_registry_number")
	ErrInvalidEmail       = errors.New("invalid_contact_email")
	ErrInvalidCompanySize = errors.New("invalid_company_size")
	ErrInvalidYearFounded = errors.New("invalid_year_founded")
	ErrInvalidStatus      = errors.New("invalid_organization_status")
	ErrDuplicateRegistry  = errors.New("registry_number_already_registered")
)
