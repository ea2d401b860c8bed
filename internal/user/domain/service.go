package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/orgsync/internal/identity"
)

type Service interface {
	Create(ctx context.Context, req CreateUserRequest, actor identity.Actor) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
	UpdateStatus(ctx context.Context, id string, status string, actor identity.Actor) (*User, error)
	ListOrganizations(ctx context.Context, id string) ([]string, error)
	Delete(ctx context.Context, id string, actor identity.Actor) error
}

type CreateUserRequest struct {
	Email    string
	FullName string
	Role     string
}

type SearchRequest struct {
	Name string
	Page int
	Size int
}

type SearchResult struct {
	Items []User `json:"items"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
}

var (
	ErrNotFound       = errors.New("user_not_found")
	ErrInvalidID      = errors.New("invalid_user_id")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidName    = errors.New("invalid_full_name")
	ErrInvalidRole    = errors.New("invalid_role")
	ErrInvalidStatus  = errors.New("invalid_user_status")
	ErrDuplicateEmail = errors.New("email_already_registered")
)
