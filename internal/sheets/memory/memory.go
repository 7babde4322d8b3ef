package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"receitas/internal/core"
)

// Store keeps incomes in process memory
type Store struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]core.Income
	now    func() time.Time
}

func New() *Store {
	return &Store{items: make(map[int64]core.Income), now: time.Now}
}

// NewFromFiles seeds the store from base/seed_incomes.txt when present.
// Each line is "name;start;end" where end is a month, "continuous" or empty.
// Blank lines, comments and invalid records are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_incomes.txt")) {
		in, err := parseSeed(line)
		if err != nil || in.Validate() != nil {
			continue
		}
		in.Normalize()
		_ = s.Create(context.Background(), &in)
	}
	return s
}

func (s *Store) Create(_ context.Context, in *core.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now().UTC()
	in.ID = s.nextID
	in.CreatedAt = now
	in.UpdatedAt = now
	in.Version = 1
	s.items[in.ID] = clone(*in)
	return nil
}

func (s *Store) Update(_ context.Context, in *core.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.items[in.ID]
	if !ok {
		return fmt.Errorf("income %d: %w", in.ID, core.ErrNotFound)
	}
	in.CreatedAt = prev.CreatedAt
	in.UpdatedAt = s.now().UTC()
	in.Version = prev.Version + 1
	s.items[in.ID] = clone(*in)
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (*core.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("income %d: %w", id, core.ErrNotFound)
	}
	out := clone(in)
	return &out, nil
}

// List returns incomes ordered by start month, then id
func (s *Store) List(_ context.Context) ([]core.Income, error) {
	s.mu.Lock()
	out := make([]core.Income, 0, len(s.items))
	for _, in := range s.items {
		out = append(out, clone(in))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].StartedAt.Compare(out[j].StartedAt); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("income %d: %w", id, core.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

func clone(in core.Income) core.Income {
	if in.EndedAt != nil {
		end := *in.EndedAt
		in.EndedAt = &end
	}
	return in
}

func parseSeed(line string) (core.Income, error) {
	parts := strings.Split(line, ";")
	if len(parts) != 3 {
		return core.Income{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}
	start, err := core.ParseMonth(parts[1])
	if err != nil {
		return core.Income{}, err
	}
	in := core.Income{Name: strings.TrimSpace(parts[0]), StartedAt: start}

	switch end := strings.TrimSpace(parts[2]); strings.ToLower(end) {
	case "":
	case "continuous", "contínua", "continua":
		in.IsContinuous = true
	default:
		m, err := core.ParseMonth(end)
		if err != nil {
			return core.Income{}, err
		}
		in.EndedAt = &m
	}
	return in, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
