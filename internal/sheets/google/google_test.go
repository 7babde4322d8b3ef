package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"receitas/internal/config"
	"receitas/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func monthPtr(year, month int) *core.Month {
	m := core.NewMonth(year, month)
	return &m
}

// fakeSheets serves the handful of values endpoints the client uses.
type fakeSheets struct {
	mu       sync.Mutex
	column   [][]any
	calls    []string
	inputs   []string // valueInputOption of each write
	lastBody gsheet.ValueRange
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get")
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "Receitas!A:A", "values": f.column})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		f.inputs = append(f.inputs, r.URL.Query().Get("valueInputOption"))
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"updates": map[string]any{"updatedRange": "Receitas!A3:G3"}})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear")
		_ = json.NewEncoder(w).Encode(map[string]any{"clearedRange": "Receitas!A2:G2"})
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
		f.inputs = append(f.inputs, r.URL.Query().Get("valueInputOption"))
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": "Receitas!A2:G2"})
	default:
		http.Error(w, "unexpected request "+r.Method+" "+path, http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return New(svc, "sheet-id", "Receitas")
}

func TestIncomeRow(t *testing.T) {
	tests := []struct {
		name   string
		income core.Income
		want   []any
	}{
		{
			name:   "continuous",
			income: core.Income{ID: 1, Name: "Salário", Description: "CLT", StartedAt: core.NewMonth(2024, 1), IsContinuous: true},
			want:   []any{int64(1), "Salário", "CLT", "01/2024", "", "Sim", "Salário (Desde 01/2024 - Contínua)"},
		},
		{
			name:   "bounded",
			income: core.Income{ID: 2, Name: "Freela", StartedAt: core.NewMonth(2024, 1), EndedAt: monthPtr(2024, 6)},
			want:   []any{int64(2), "Freela", "", "01/2024", "06/2024", "Não", "Freela (01/2024 - 06/2024)"},
		},
		{
			name:   "open",
			income: core.Income{ID: 3, Name: "Aluguel", StartedAt: core.NewMonth(2024, 1)},
			want:   []any{int64(3), "Aluguel", "", "01/2024", "", "Não", "Aluguel (01/2024 - Erro de data)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := incomeRow(tt.income)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("column %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClient_UpsertIncomeRejects(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Receitas"}

	if _, err := c.UpsertIncome(context.Background(), core.Income{Name: "x", StartedAt: core.NewMonth(2024, 1)}); err == nil {
		t.Fatal("expected error for income without id")
	}

	invalid := core.Income{ID: 1, Name: "x", StartedAt: core.NewMonth(2024, 6), EndedAt: monthPtr(2024, 1)}
	if _, err := c.UpsertIncome(context.Background(), invalid); err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected validation error, got %v", err)
	}

	valid := core.Income{ID: 1, Name: "x", StartedAt: core.NewMonth(2024, 1)}
	if _, err := c.UpsertIncome(context.Background(), valid); err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected uninitialized service error, got %v", err)
	}
}

func TestClient_UpsertIncomeAppendsNewRow(t *testing.T) {
	fake := &fakeSheets{column: [][]any{{"id"}, {"5"}}}
	c := newTestClient(t, fake)

	in := core.Income{ID: 7, Name: "Freela", StartedAt: core.NewMonth(2024, 1), EndedAt: monthPtr(2024, 6)}
	ref, err := c.UpsertIncome(context.Background(), in)
	if err != nil {
		t.Fatalf("UpsertIncome() error = %v", err)
	}
	if ref != "Receitas!A3:G3" {
		t.Errorf("ref = %q", ref)
	}
	if strings.Join(fake.calls, ",") != "get,append" {
		t.Errorf("calls = %v", fake.calls)
	}
	if len(fake.lastBody.Values) != 1 || fake.lastBody.Values[0][1] != "Freela" {
		t.Errorf("unexpected body: %+v", fake.lastBody.Values)
	}
}

func TestClient_UpsertIncomeOverwritesExistingRow(t *testing.T) {
	fake := &fakeSheets{column: [][]any{{"id"}, {"7"}}}
	c := newTestClient(t, fake)

	in := core.Income{ID: 7, Name: "Salário", StartedAt: core.NewMonth(2024, 1), IsContinuous: true}
	ref, err := c.UpsertIncome(context.Background(), in)
	if err != nil {
		t.Fatalf("UpsertIncome() error = %v", err)
	}
	if ref != "Receitas!A2:G2" {
		t.Errorf("ref = %q, want Receitas!A2:G2", ref)
	}
	if strings.Join(fake.calls, ",") != "get,update" {
		t.Errorf("calls = %v", fake.calls)
	}
	if len(fake.lastBody.Values) != 1 || fake.lastBody.Values[0][5] != "Sim" {
		t.Errorf("unexpected body: %+v", fake.lastBody.Values)
	}
}

func TestClient_UpsertIncomeWritesRawValues(t *testing.T) {
	formula := `=HYPERLINK("http://example.com","Salário")`
	for _, column := range [][][]any{{{"id"}}, {{"id"}, {"7"}}} {
		fake := &fakeSheets{column: column}
		c := newTestClient(t, fake)

		in := core.Income{ID: 7, Name: formula, Description: "+5511999999999", StartedAt: core.NewMonth(2024, 1), IsContinuous: true}
		if _, err := c.UpsertIncome(context.Background(), in); err != nil {
			t.Fatalf("UpsertIncome() error = %v", err)
		}
		if len(fake.inputs) != 1 || fake.inputs[0] != "RAW" {
			t.Errorf("calls %v sent valueInputOption %v, want RAW", fake.calls, fake.inputs)
		}
		if got := fake.lastBody.Values[0][1]; got != formula {
			t.Errorf("name cell = %v, want the text unchanged", got)
		}
	}
}

func TestClient_DeleteIncome(t *testing.T) {
	t.Run("clears matching row", func(t *testing.T) {
		fake := &fakeSheets{column: [][]any{{"id"}, {"7"}}}
		c := newTestClient(t, fake)
		if err := c.DeleteIncome(context.Background(), 7); err != nil {
			t.Fatalf("DeleteIncome() error = %v", err)
		}
		if strings.Join(fake.calls, ",") != "get,clear" {
			t.Errorf("calls = %v", fake.calls)
		}
	})

	t.Run("missing row is not an error", func(t *testing.T) {
		fake := &fakeSheets{column: [][]any{{"id"}}}
		c := newTestClient(t, fake)
		if err := c.DeleteIncome(context.Background(), 7); err != nil {
			t.Fatalf("DeleteIncome() error = %v", err)
		}
		if strings.Join(fake.calls, ",") != "get" {
			t.Errorf("calls = %v", fake.calls)
		}
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Run("missing spreadsheet id", func(t *testing.T) {
		_, err := NewFromConfig(context.Background(), &config.Config{})
		if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
		_, err := NewFromConfig(context.Background(), &config.Config{GoogleSpreadsheetID: "abc"})
		if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("unreadable credentials file", func(t *testing.T) {
		_, err := NewFromConfig(context.Background(), &config.Config{
			GoogleSpreadsheetID:      "abc",
			GoogleServiceAccountFile: "/non/existent/sa.json",
		})
		if err == nil || !strings.Contains(err.Error(), "read service account file") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
