// Package memstore is an in-memory record store with the same atomicity
// guarantees as the Postgres repositories: every status change is a
// compare-and-swap performed under one mutex.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
)

type Store struct {
	mu     sync.Mutex
	tasks  map[uuid.UUID]*models.Task
	skills map[uuid.UUID]*models.Skill
	orders map[string]*models.Order
	agents map[string]*models.Agent
	now    func() time.Time
}

func New() *Store {
	return &Store{
		tasks:  make(map[uuid.UUID]*models.Task),
		skills: make(map[uuid.UUID]*models.Skill),
		orders: make(map[string]*models.Order),
		agents: make(map[string]*models.Agent),
		now:    time.Now,
	}
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func copyTask(t *models.Task) *models.Task {
	c := *t
	if t.Output != nil {
		out := *t.Output
		c.Output = &out
	}
	if t.ClaimedAt != nil {
		at := *t.ClaimedAt
		c.ClaimedAt = &at
	}
	return &c
}

func (s *Store) CreateTask(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return repository.ErrDuplicate
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.UpdatedAt = t.CreatedAt
	s.tasks[t.ID] = copyTask(t)
	return nil
}

func (s *Store) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTask(t), nil
}

func (s *Store) ClaimOldestPending(_ context.Context, agentID string, freshSince, now time.Time) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *models.Task
	for _, t := range s.tasks {
		if t.Status != models.TaskStatusPending || t.CreatedAt.Before(freshSince) {
			continue
		}
		if oldest == nil || olderThan(t, oldest) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = models.TaskStatusProcessing
	oldest.ClaimedBy = agentID
	claimedAt := now
	oldest.ClaimedAt = &claimedAt
	oldest.UpdatedAt = now
	return copyTask(oldest), nil
}

func olderThan(a, b *models.Task) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID.String() < b.ID.String()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *Store) ExpirePending(_ context.Context, olderThan, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tasks {
		if t.Status == models.TaskStatusPending && t.CreatedAt.Before(olderThan) {
			t.Status = models.TaskStatusExpired
			t.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *Store) FinishProcessing(_ context.Context, id uuid.UUID, claimant, status, output string, now time.Time) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != models.TaskStatusProcessing {
		return nil, nil
	}
	if claimant != "" && t.ClaimedBy != claimant {
		return nil, nil
	}
	t.Status = status
	out := output
	t.Output = &out
	t.UpdatedAt = now
	return copyTask(t), nil
}

func (s *Store) ReapProcessing(_ context.Context, claimedBefore, now time.Time, output string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tasks {
		if t.Status != models.TaskStatusProcessing || t.ClaimedAt == nil || !t.ClaimedAt.Before(claimedBefore) {
			continue
		}
		t.Status = models.TaskStatusFailed
		out := output
		t.Output = &out
		t.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *Store) ListRecent(_ context.Context, status string, limit int) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Task
	for _, t := range s.tasks {
		if status == "" || t.Status == status {
			list = append(list, copyTask(t))
		}
	}
	sort.Slice(list, func(i, j int) bool { return olderThan(list[j], list[i]) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// ---------------------------------------------------------------------------
// Skills
// ---------------------------------------------------------------------------

func (s *Store) CreateSkill(_ context.Context, sk *models.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.skills[sk.ID]; ok {
		return repository.ErrDuplicate
	}
	sk.CreatedAt = s.now()
	c := *sk
	s.skills[sk.ID] = &c
	return nil
}

func (s *Store) GetSkill(_ context.Context, id uuid.UUID) (*models.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.skills[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *sk
	return &c, nil
}

func (s *Store) SearchSkills(_ context.Context, q repository.SkillQuery) ([]*models.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Skill
	scores := make(map[uuid.UUID]int)
	for _, sk := range s.skills {
		if q.Category != "" && sk.Category != q.Category {
			continue
		}
		if sk.PriceUnits < q.MinPriceUnits {
			continue
		}
		score := repository.MatchScore(sk, q.Keywords)
		if len(q.Keywords) > 0 && score == 0 {
			continue
		}
		c := *sk
		scores[c.ID] = score
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if scores[a.ID] != scores[b.ID] {
			return scores[a.ID] > scores[b.ID]
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderKey(o.PaymentReference, o.PayerIdentity, o.SkillID)
	if _, ok := s.orders[key]; ok {
		return repository.ErrDuplicate
	}
	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	c := *o
	s.orders[key] = &c
	return nil
}

func (s *Store) GetOrder(_ context.Context, ref, payer string, skillID uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderKey(ref, payer, skillID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *o
	return &c, nil
}

func orderKey(ref, payer string, skillID uuid.UUID) string {
	return ref + "|" + payer + "|" + skillID.String()
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

func (s *Store) CreateAgent(_ context.Context, a *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; ok {
		return repository.ErrDuplicate
	}
	a.CreatedAt = s.now()
	c := *a
	s.agents[a.ID] = &c
	return nil
}

func (s *Store) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}
