package sheets

import (
	"context"

	"receitas/internal/core"
)

// Ports for outbound adapters.
type (
	IncomeWriter interface {
		// UpsertIncome writes the income's row and returns its A1 reference.
		UpsertIncome(ctx context.Context, in core.Income) (rowRef string, err error)
	}

	IncomeDeleter interface {
		DeleteIncome(ctx context.Context, id int64) error
	}

	IncomeExporter interface {
		IncomeWriter
		IncomeDeleter
	}
)
