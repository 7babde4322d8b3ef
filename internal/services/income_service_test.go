package services

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"receitas/internal/core"
	applog "receitas/internal/log"
	"receitas/internal/sheets/memory"
	"receitas/internal/storage"
)

type fakePublisher struct {
	synced  []int64
	deleted []int64
	err     error
}

func (p *fakePublisher) PublishIncomeSync(_ context.Context, id int64) error {
	p.synced = append(p.synced, id)
	return p.err
}

func (p *fakePublisher) PublishIncomeDelete(_ context.Context, id int64) error {
	p.deleted = append(p.deleted, id)
	return p.err
}

// countingStore records calls and can fail on demand
type countingStore struct {
	*memory.Store
	creates int
	updates int
	err     error
}

func (s *countingStore) Create(ctx context.Context, in *core.Income) error {
	s.creates++
	if s.err != nil {
		return s.err
	}
	return s.Store.Create(ctx, in)
}

func (s *countingStore) Update(ctx context.Context, in *core.Income) error {
	s.updates++
	if s.err != nil {
		return s.err
	}
	return s.Store.Update(ctx, in)
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Output: &bytes.Buffer{}})
}

func newService(store IncomeStore, pub Publisher) *IncomeService {
	return NewIncomeService(store, pub, quietLogger())
}

func monthPtr(y, m int) *core.Month {
	v := core.NewMonth(y, m)
	return &v
}

func TestIncomeService_SaveScenarios(t *testing.T) {
	tests := []struct {
		name      string
		income    core.Income
		wantErr   error
		wantField string
		wantLabel string
	}{
		{
			name:      "continuous salary",
			income:    core.Income{Name: "Salário", StartedAt: core.NewMonth(2024, 1), IsContinuous: true},
			wantLabel: "Salário (Desde 01/2024 - Contínua)",
		},
		{
			name:      "single month bonus",
			income:    core.Income{Name: "Bônus", StartedAt: core.NewMonth(2024, 3), EndedAt: monthPtr(2024, 3)},
			wantLabel: "Bônus (03/2024)",
		},
		{
			name:      "bounded freelance",
			income:    core.Income{Name: "Freela", StartedAt: core.NewMonth(2024, 1), EndedAt: monthPtr(2024, 6)},
			wantLabel: "Freela (01/2024 - 06/2024)",
		},
		{
			name:      "end before start",
			income:    core.Income{Name: "Erro", StartedAt: core.NewMonth(2024, 6), EndedAt: monthPtr(2024, 1)},
			wantErr:   core.ErrInvalidEndDate,
			wantField: core.FieldEndedAt,
		},
		{
			name:      "continuous with end",
			income:    core.Income{Name: "Conflito", StartedAt: core.NewMonth(2024, 1), EndedAt: monthPtr(2024, 6), IsContinuous: true},
			wantErr:   core.ErrInvalidContinuousEnd,
			wantField: core.FieldIsContinuous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &countingStore{Store: memory.New()}
			pub := &fakePublisher{}
			svc := newService(store, pub)

			in := tt.income
			err := svc.Save(context.Background(), &in)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				var ve *core.ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantField {
					t.Fatalf("expected validation error on %q, got %v", tt.wantField, err)
				}
				if store.creates != 0 || len(pub.synced) != 0 {
					t.Fatalf("store or publisher called on invalid income: creates=%d synced=%v", store.creates, pub.synced)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := svc.Get(context.Background(), in.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.String() != tt.wantLabel {
				t.Errorf("label = %q, want %q", got.String(), tt.wantLabel)
			}
			if len(pub.synced) != 1 || pub.synced[0] != in.ID {
				t.Errorf("expected one sync publish for %d, got %v", in.ID, pub.synced)
			}
		})
	}
}

func TestIncomeService_SaveUpdatesExisting(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	svc := newService(store, nil)
	ctx := context.Background()

	in := &core.Income{Name: "Freela", StartedAt: core.NewMonth(2024, 1), EndedAt: monthPtr(2024, 3)}
	if err := svc.Save(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	// switching to continuous while clearing the end is a valid transition
	in.IsContinuous = true
	in.EndedAt = nil
	if err := svc.Save(ctx, in); err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.creates != 1 || store.updates != 1 {
		t.Fatalf("creates=%d updates=%d", store.creates, store.updates)
	}

	got, _ := svc.Get(ctx, in.ID)
	if got.Kind() != core.KindContinuous || got.EndedAt != nil {
		t.Fatalf("unexpected stored income: %+v", got)
	}
}

func TestIncomeService_SavePropagatesStoreErrorUnchanged(t *testing.T) {
	storeErr := errors.New("disk full")
	store := &countingStore{Store: memory.New(), err: storeErr}
	pub := &fakePublisher{}
	svc := newService(store, pub)

	err := svc.Save(context.Background(), &core.Income{Name: "Salário", StartedAt: core.NewMonth(2024, 1), IsContinuous: true})
	if err != storeErr {
		t.Fatalf("expected store error unchanged, got %v", err)
	}
	if len(pub.synced) != 0 {
		t.Fatalf("publish should not happen after store failure")
	}
}

func TestIncomeService_PublishFailureDoesNotFailSave(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := newService(memory.New(), pub)

	in := &core.Income{Name: "Salário", StartedAt: core.NewMonth(2024, 1), IsContinuous: true}
	if err := svc.Save(context.Background(), in); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	if in.ID == 0 {
		t.Fatalf("expected income to be persisted")
	}
}

func TestIncomeService_ListActive(t *testing.T) {
	svc := newService(memory.New(), nil)
	ctx := context.Background()

	for _, in := range []*core.Income{
		{Name: "Salário", StartedAt: core.NewMonth(2024, 1), IsContinuous: true},
		{Name: "Freela", StartedAt: core.NewMonth(2024, 1), EndedAt: monthPtr(2024, 3)},
		{Name: "Futuro", StartedAt: core.NewMonth(2025, 1)},
	} {
		if err := svc.Save(ctx, in); err != nil {
			t.Fatalf("save %s: %v", in.Name, err)
		}
	}

	active, err := svc.ListActive(ctx, core.NewMonth(2024, 5))
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].Name != "Salário" {
		t.Fatalf("unexpected active incomes: %v", active)
	}

	all, _ := svc.List(ctx)
	if len(all) != 3 {
		t.Fatalf("expected 3 incomes, got %d", len(all))
	}
}

func TestIncomeService_Delete(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(memory.New(), pub)
	ctx := context.Background()

	in := &core.Income{Name: "Bônus", StartedAt: core.NewMonth(2024, 3), EndedAt: monthPtr(2024, 3)}
	if err := svc.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Delete(ctx, in.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(pub.deleted) != 1 || pub.deleted[0] != in.ID {
		t.Fatalf("expected delete publish, got %v", pub.deleted)
	}
	if err := svc.Delete(ctx, in.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncomeService_DeleteSurvivesPublishFailure(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "receitas.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	pub := &fakePublisher{}
	svc := newService(repo, pub)
	ctx := context.Background()

	in := &core.Income{Name: "Bônus", StartedAt: core.NewMonth(2024, 3), EndedAt: monthPtr(2024, 3)}
	if err := svc.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.MarkSynced(ctx, in.ID, in.Version); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	pub.err = errors.New("broker unreachable")
	if err := svc.Delete(ctx, in.ID); err != nil {
		t.Fatalf("delete should succeed without the broker, got %v", err)
	}
	if _, err := svc.Get(ctx, in.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	pending, err := repo.PendingSync(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != in.ID || pending[0].Status != storage.SyncPendingDelete {
		t.Fatalf("expected a pending delete for %d, got %+v", in.ID, pending)
	}
}

func TestIncomeService_Close(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		svc := &IncomeService{}
		if err := svc.Close(); err != nil {
			t.Fatalf("Close should not return error with nil components: %v", err)
		}
	})
}
