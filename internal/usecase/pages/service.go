// Package pages manages a tenant's page inventory: listing, deletion, and
// clearing the whole session.
package pages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/domain"
)

// Store is the page inventory surface this service needs.
type Store interface {
	ListPages(ctx context.Context, tenant domain.Tenant) ([]domain.PageMeta, error)
	GetPage(ctx context.Context, tenant domain.Tenant, id int64) (domain.Page, error)
	DeletePage(ctx context.Context, tenant domain.Tenant, id int64) error
	Reset(ctx context.Context, tenant domain.Tenant) error
}

// Service handles page inventory requests.
type Service struct {
	store  Store
	logger *zap.Logger
}

// New creates a pages service.
func New(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// List returns the tenant's pages in creation order. An empty inventory is
// an empty slice, not an error.
func (s *Service) List(ctx context.Context, tenant domain.Tenant) ([]domain.PageMeta, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	metas, err := s.store.ListPages(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if metas == nil {
		metas = []domain.PageMeta{}
	}
	return metas, nil
}

// Get returns one page with its raw text.
func (s *Service) Get(ctx context.Context, tenant domain.Tenant, id int64) (domain.Page, error) {
	if err := tenant.Validate(); err != nil {
		return domain.Page{}, err
	}
	page, err := s.store.GetPage(ctx, tenant, id)
	if err != nil {
		return domain.Page{}, fmt.Errorf("get page %d: %w", id, err)
	}
	return page, nil
}

// Delete removes the page and its chunks. Deleting an unknown page yields
// domain.ErrPageNotFound.
func (s *Service) Delete(ctx context.Context, tenant domain.Tenant, id int64) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	if err := s.store.DeletePage(ctx, tenant, id); err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	s.logger.Info("Page deleted", zap.String("tenant", string(tenant)), zap.Int64("page_id", id))
	return nil
}

// Reset clears every page and chunk the tenant owns. Resetting an empty
// tenant succeeds.
func (s *Service) Reset(ctx context.Context, tenant domain.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	if err := s.store.Reset(ctx, tenant); err != nil {
		return fmt.Errorf("reset tenant: %w", err)
	}
	s.logger.Info("Tenant data cleared", zap.String("tenant", string(tenant)))
	return nil
}
