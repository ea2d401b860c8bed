package membershipsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/orgsync/internal/clock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrOwnerNotFound = errors.New("membership_owner_not_found")

// MembershipStore is a set of (owner, member) pairs. Every operation is
// idempotent.
type MembershipStore interface {
	// AddMembership reports false when the pair already existed.
	AddMembership(ctx context.Context, ownerID, memberID string) (bool, error)
	RemoveMembership(ctx context.Context, ownerID, memberID string) (bool, error)
	// RemoveAllFor drops memberID from every owner.
	RemoveAllFor(ctx context.Context, memberID string) (int64, error)
}

type tableSpec struct {
	table        string
	ownerColumn  string
	memberColumn string
	ownerTable   string
}

var (
	userSide = tableSpec{
		table:        "user_organizations",
		ownerColumn:  "user_id",
		memberColumn: "organization_id",
		ownerTable:   "users",
	}
	organizationSide = tableSpec{
		table:        "organization_members",
		ownerColumn:  "organization_id",
		memberColumn: "user_id",
		ownerTable:   "organizations",
	}
)

// Store is the gorm implementation. The composite primary key makes the add
// path a single atomic insert.
type Store struct {
	db    *gorm.DB
	clock clock.Clock
	spec  tableSpec
}

// NewUserStore manages organization ids per user.
func NewUserStore(db *gorm.DB, clk clock.Clock) *Store {
	return &Store{db: db, clock: clk, spec: userSide}
}

// NewOrganizationStore manages user ids per organization.
func NewOrganizationStore(db *gorm.DB, clk clock.Clock) *Store {
	return &Store{db: db, clock: clk, spec: organizationSide}
}

func (s *Store) AddMembership(ctx context.Context, ownerID, memberID string) (bool, error) {
	var added bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Table(s.spec.ownerTable).
			Where("id = ? AND status <> ?", ownerID, "DELETED").
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("lookup %s owner: %w", s.spec.ownerTable, err)
		}
		if count == 0 {
			return ErrOwnerNotFound
		}

		res := tx.Table(s.spec.table).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(map[string]interface{}{
				s.spec.ownerColumn:  ownerID,
				s.spec.memberColumn: memberID,
				"created_at":        s.clock.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("insert %s: %w", s.spec.table, res.Error)
		}
		added = res.RowsAffected > 0
		return nil
	})
	return added, err
}

func (s *Store) RemoveMembership(ctx context.Context, ownerID, memberID string) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND %s = ?`, s.spec.table, s.spec.ownerColumn, s.spec.memberColumn),
		ownerID,
		memberID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) RemoveAllFor(ctx context.Context, memberID string) (int64, error) {
	res := s.db.WithContext(ctx).Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, s.spec.table, s.spec.memberColumn),
		memberID,
	)
	return res.RowsAffected, res.Error
}

// Members lists the member ids of owner in insertion order.
func (s *Store) Members(ctx context.Context, ownerID string) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).
		Table(s.spec.table).
		Where(fmt.Sprintf("%s = ?", s.spec.ownerColumn), ownerID).
		Order("created_at ASC").
		Order(s.spec.memberColumn+" ASC").
		Pluck(s.spec.memberColumn, &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

var _ MembershipStore = (*Store)(nil)
