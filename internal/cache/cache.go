// Package cache keeps recently read incomes in memory in front of a store.
package cache

import (
	"context"
	"time"

	"receitas/internal/core"
)

// Store is the store being cached; it matches services.IncomeStore
type Store interface {
	Create(ctx context.Context, in *core.Income) error
	Update(ctx context.Context, in *core.Income) error
	Get(ctx context.Context, id int64) (*core.Income, error)
	List(ctx context.Context) ([]core.Income, error)
	Delete(ctx context.Context, id int64) error
}

// IncomeStore caches Get by id. Writes go to the inner store first and then
// refresh or evict the entry, so a failed write never leaves a stale hit.
type IncomeStore struct {
	inner Store
	byID  *LRUCache[int64, core.Income]
}

func NewIncomeStore(inner Store, maxSize int, ttl time.Duration) *IncomeStore {
	return &IncomeStore{inner: inner, byID: NewLRUCache[int64, core.Income](maxSize, ttl)}
}

func (s *IncomeStore) Create(ctx context.Context, in *core.Income) error {
	if err := s.inner.Create(ctx, in); err != nil {
		return err
	}
	s.byID.Set(in.ID, copyIncome(*in))
	return nil
}

func (s *IncomeStore) Update(ctx context.Context, in *core.Income) error {
	if err := s.inner.Update(ctx, in); err != nil {
		s.byID.Delete(in.ID)
		return err
	}
	s.byID.Set(in.ID, copyIncome(*in))
	return nil
}

func (s *IncomeStore) Get(ctx context.Context, id int64) (*core.Income, error) {
	if in, ok := s.byID.Get(id); ok {
		out := copyIncome(in)
		return &out, nil
	}
	in, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.byID.Set(id, copyIncome(*in))
	return in, nil
}

// List always reads through; it is the call that must see other writers
func (s *IncomeStore) List(ctx context.Context) ([]core.Income, error) {
	return s.inner.List(ctx)
}

func (s *IncomeStore) Delete(ctx context.Context, id int64) error {
	s.byID.Delete(id)
	return s.inner.Delete(ctx, id)
}

// Close closes the inner store when it holds resources
func (s *IncomeStore) Close() error {
	s.byID.Purge()
	if c, ok := s.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func copyIncome(in core.Income) core.Income {
	if in.EndedAt != nil {
		end := *in.EndedAt
		in.EndedAt = &end
	}
	return in
}
