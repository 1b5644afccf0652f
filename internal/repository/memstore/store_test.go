package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
)

func TestClaimOldestPending_SingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	task := &models.Task{ID: uuid.New(), Input: "x", Status: models.TaskStatusPending, CreatedAt: now}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	const n = 8
	results := make(chan *models.Task, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.ClaimOldestPending(ctx, uuid.NewString(), now.Add(-time.Minute), now)
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			results <- got
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for r := range results {
		if r != nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}
}

func TestClaimOldestPending_SkipsOlderThanFreshSince(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	old := &models.Task{ID: uuid.New(), Status: models.TaskStatusPending, CreatedAt: now.Add(-2 * time.Minute)}
	if err := s.CreateTask(ctx, old); err != nil {
		t.Fatal(err)
	}
	got, err := s.ClaimOldestPending(ctx, "a", now.Add(-time.Minute), now)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected no claim, got %v", got.ID)
	}
}

func TestFinishProcessing_CAS(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	task := &models.Task{ID: uuid.New(), Status: models.TaskStatusPending, CreatedAt: now}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	if got, _ := s.FinishProcessing(ctx, task.ID, "", models.TaskStatusCompleted, "out", now); got != nil {
		t.Fatal("finish on pending task must not apply")
	}
	if _, err := s.ClaimOldestPending(ctx, "a", now.Add(-time.Minute), now); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.FinishProcessing(ctx, task.ID, "b", models.TaskStatusCompleted, "out", now); got != nil {
		t.Fatal("finish by non-claimant must not apply")
	}
	got, err := s.FinishProcessing(ctx, task.ID, "a", models.TaskStatusCompleted, "out", now)
	if err != nil || got == nil {
		t.Fatalf("finish by claimant: got %v, err %v", got, err)
	}
	if got.Status != models.TaskStatusCompleted || *got.Output != "out" {
		t.Fatalf("unexpected task state: %+v", got)
	}
}

func TestReturnedTasksAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	task := &models.Task{ID: uuid.New(), Status: models.TaskStatusPending, CreatedAt: time.Now()}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetTask(ctx, task.ID)
	got.Status = models.TaskStatusCompleted

	again, _ := s.GetTask(ctx, task.ID)
	if again.Status != models.TaskStatusPending {
		t.Fatalf("store state mutated through returned pointer: %s", again.Status)
	}
}

func TestSearchSkills_Filters(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, sk := range []*models.Skill{
		{ID: uuid.New(), Title: "Rust async patterns", Description: "tokio", Category: "code", PriceUnits: 1_000_000},
		{ID: uuid.New(), Title: "Sourdough", Description: "bread baking", Category: "food", PriceUnits: 500_000},
	} {
		if err := s.CreateSkill(ctx, sk); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		name string
		q    repository.SkillQuery
		want int
	}{
		{"keyword title", repository.SkillQuery{Keywords: []string{"rust"}}, 1},
		{"keyword description", repository.SkillQuery{Keywords: []string{"BREAD"}}, 1},
		{"category", repository.SkillQuery{Category: "food"}, 1},
		{"min price", repository.SkillQuery{MinPriceUnits: 750_000}, 1},
		{"no match", repository.SkillQuery{Keywords: []string{"quantum"}}, 0},
		{"all", repository.SkillQuery{}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.SearchSkills(ctx, tc.q)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d results, got %d", tc.want, len(got))
			}
		})
	}
}

func TestOrders_KeyedByReferencePayerAndSkill(t *testing.T) {
	s := New()
	ctx := context.Background()
	skill := uuid.New()
	o := &models.Order{ID: uuid.New(), PayerIdentity: "a", SkillID: skill, PaymentReference: "0xabc", Status: models.OrderStatusSettled}
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatal(err)
	}
	err := s.CreateOrder(ctx, &models.Order{ID: uuid.New(), PayerIdentity: "a", SkillID: skill, PaymentReference: "0xabc"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := s.CreateOrder(ctx, &models.Order{ID: uuid.New(), PayerIdentity: "b", SkillID: skill, PaymentReference: "0xabc"}); err != nil {
		t.Fatalf("another payer with the same reference: %v", err)
	}
	got, err := s.GetOrder(ctx, "0xabc", "a", skill)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != o.ID {
		t.Fatalf("expected order %s, got %s", o.ID, got.ID)
	}
	if _, err := s.GetOrder(ctx, "0xdef", "a", skill); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
