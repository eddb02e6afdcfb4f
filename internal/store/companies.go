package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/ppiankov/claimwatch/internal/model"
)

// AddCompany creates a company, or returns the existing one with the same
// name. created reports whether a row was inserted.
func (s *Store) AddCompany(ctx context.Context, name, email string) (*model.Company, bool, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, false, fmt.Errorf("company name is required")
	}

	db := s.db.WithContext(ctx)

	var existing model.Company
	err := db.Where("name = ?", name).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("lookup company: %w", err)
	}

	c := &model.Company{Name: name, Email: email}
	if err := db.Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if err := db.Where("name = ?", name).First(&existing).Error; err == nil {
				return &existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create company: %w", err)
	}
	return c, true, nil
}

// ListCompanies returns every company ordered by name
func (s *Store) ListCompanies(ctx context.Context) ([]model.Company, error) {
	var companies []model.Company
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&companies).Error; err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return companies, nil
}

// GetCompany loads one company
func (s *Store) GetCompany(ctx context.Context, id uint) (*model.Company, error) {
	var c model.Company
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// DeleteCompany removes a company. Its posts and debunks are kept.
func (s *Store) DeleteCompany(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Company{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete company: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MatchCompany finds the company whose name contains the brand or is
// contained by it, case-insensitively. Exact matches win.
func (s *Store) MatchCompany(ctx context.Context, brand string) (*model.Company, error) {
	companies, err := s.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}

	b := strings.ToLower(strings.TrimSpace(brand))
	if b == "" {
		return nil, ErrNotFound
	}
	for i := range companies {
		if strings.ToLower(companies[i].Name) == b {
			return &companies[i], nil
		}
	}
	for i := range companies {
		n := strings.ToLower(companies[i].Name)
		if strings.Contains(b, n) || strings.Contains(n, b) {
			return &companies[i], nil
		}
	}
	return nil, ErrNotFound
}
