package services

import (
	"context"
	"errors"
	"fmt"

	"receitas/internal/core"
	applog "receitas/internal/log"
)

// IncomeStore is the persistence collaborator behind IncomeService.
// Implementations return core.ErrNotFound (possibly wrapped) for unknown ids.
type IncomeStore interface {
	Create(ctx context.Context, in *core.Income) error
	Update(ctx context.Context, in *core.Income) error
	Get(ctx context.Context, id int64) (*core.Income, error)
	List(ctx context.Context) ([]core.Income, error)
	Delete(ctx context.Context, id int64) error
}

// Publisher announces changes so the export worker can pick them up
type Publisher interface {
	PublishIncomeSync(ctx context.Context, id int64) error
	PublishIncomeDelete(ctx context.Context, id int64) error
}

// IncomeService validates, normalizes and persists incomes, then publishes
// sync events. A nil publisher disables publishing.
type IncomeService struct {
	store     IncomeStore
	publisher Publisher
	logger    *applog.Logger
}

func NewIncomeService(store IncomeStore, publisher Publisher, logger *applog.Logger) *IncomeService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &IncomeService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentIncome),
	}
}

// Save validates in, normalizes it and hands it to the store. Validation
// errors are returned before the store is touched; store errors are
// returned unchanged.
func (s *IncomeService) Save(ctx context.Context, in *core.Income) error {
	if err := in.Validate(); err != nil {
		s.logger.WarnContext(ctx, "Income rejected",
			append(validationFields(err), applog.FieldIncomeName, in.Name)...)
		return err
	}

	in.Normalize()

	op := applog.OpCreate
	var err error
	if in.ID == 0 {
		err = s.store.Create(ctx, in)
	} else {
		op = applog.OpUpdate
		err = s.store.Update(ctx, in)
	}
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Income saved", applog.NewFields().
		WithOperation(op).
		WithIncome(in.ID, in.Name, in.StartedAt.Format(), formatEnd(in.EndedAt), in.IsContinuous).
		ToSlice()...)

	if s.publisher != nil {
		if err := s.publisher.PublishIncomeSync(ctx, in.ID); err != nil {
			// the income is stored; the scheduled replay will pick it up
			s.logger.ErrorContext(ctx, "Failed to publish sync message",
				applog.FieldIncomeID, in.ID, applog.FieldError, err)
		}
	}

	return nil
}

func (s *IncomeService) Get(ctx context.Context, id int64) (*core.Income, error) {
	return s.store.Get(ctx, id)
}

func (s *IncomeService) List(ctx context.Context) ([]core.Income, error) {
	return s.store.List(ctx)
}

// ListActive returns the incomes that cover month m
func (s *IncomeService) ListActive(ctx context.Context, m core.Month) ([]core.Income, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Income, 0, len(all))
	for _, in := range all {
		if in.ActiveIn(m) {
			out = append(out, in)
		}
	}
	return out, nil
}

// Delete removes an income and publishes a delete event. SQL stores keep a
// tombstone until the worker has removed the sheet row.
func (s *IncomeService) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Income deleted", applog.FieldIncomeID, id, applog.FieldOperation, applog.OpDelete)

	if s.publisher != nil {
		if err := s.publisher.PublishIncomeDelete(ctx, id); err != nil {
			// the store keeps a tombstone; the scheduled replay clears the sheet row
			s.logger.ErrorContext(ctx, "Failed to publish delete message",
				applog.FieldIncomeID, id, applog.FieldError, err)
		}
	}
	return nil
}

// Close releases the store and publisher when they hold resources
func (s *IncomeService) Close() error {
	var errs []error

	if c, ok := s.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close income service: %v", errs)
	}
	return nil
}

func validationFields(err error) []any {
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		return []any{applog.FieldError, err, applog.FieldErrorType, applog.ErrorTypeValidation}
	}
	return []any{
		applog.FieldField, ve.Field,
		applog.FieldCode, ve.Code,
		applog.FieldErrorType, applog.ErrorTypeValidation,
	}
}

func formatEnd(m *core.Month) string {
	if m == nil {
		return ""
	}
	return m.Format()
}
