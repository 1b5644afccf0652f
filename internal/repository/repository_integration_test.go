//go:build integration

package repository_test

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hive402/backend/db/migrations"
	"github.com/hive402/backend/internal/jobs"
	"github.com/hive402/backend/internal/ledger"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	pgCtr, err := tcPostgres.Run(ctx, "postgres:16-alpine",
		tcPostgres.WithDatabase("hive"),
		tcPostgres.WithUsername("hive"),
		tcPostgres.WithPassword("hive"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	defer pgCtr.Terminate(ctx) //nolint:errcheck

	dsn, err := pgCtr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("postgres connection string: %v", err)
	}
	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer testPool.Close()

	if _, err := migrations.Apply(ctx, testPool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	return m.Run()
}

func resetTasks(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `DELETE FROM tasks`)
	require.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func TestTaskRepo_ConcurrentClaimHasOneWinner(t *testing.T) {
	resetTasks(t)
	ctx := context.Background()
	q := jobs.NewService(repository.NewTaskRepo(testPool))

	task, err := q.Enqueue(ctx, "only one agent may take this")
	require.NoError(t, err)

	const agents = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			got, err := q.ClaimNext(ctx, id)
			assert.NoError(t, err)
			if got != nil {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}(uuid.NewString())
	}
	wg.Wait()

	require.Len(t, winners, 1)
	st, err := q.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, st.Status)
	assert.Equal(t, winners[0], st.ClaimedBy)
}

func TestTaskRepo_ExpiryAndCompletion(t *testing.T) {
	resetTasks(t)
	ctx := context.Background()
	repo := repository.NewTaskRepo(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	stale := &models.Task{ID: uuid.New(), Input: "stale", Status: models.TaskStatusPending, CreatedAt: now.Add(-61 * time.Second)}
	fresh := &models.Task{ID: uuid.New(), Input: "fresh", Status: models.TaskStatusPending, CreatedAt: now.Add(-59 * time.Second)}
	require.NoError(t, repo.CreateTask(ctx, stale))
	require.NoError(t, repo.CreateTask(ctx, fresh))

	n, err := repo.ExpirePending(ctx, now.Add(-60*time.Second), now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.GetTask(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusExpired, got.Status)

	claimed, err := repo.ClaimOldestPending(ctx, "agent-1", now.Add(-60*time.Second), now)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, fresh.ID, claimed.ID)

	done, err := repo.FinishProcessing(ctx, fresh.ID, "agent-2", models.TaskStatusCompleted, "Y", now)
	require.NoError(t, err)
	assert.Nil(t, done, "only the claimant may finish")

	done, err = repo.FinishProcessing(ctx, fresh.ID, "agent-1", models.TaskStatusCompleted, "Y", now)
	require.NoError(t, err)
	require.NotNil(t, done)
	require.NotNil(t, done.Output)
	assert.Equal(t, "Y", *done.Output)

	again, err := repo.FinishProcessing(ctx, fresh.ID, "agent-1", models.TaskStatusFailed, "Z", now)
	require.NoError(t, err)
	assert.Nil(t, again, "terminal tasks never change")

	list, err := repo.ListRecent(ctx, models.TaskStatusCompleted, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)
}

func TestTaskRepo_ReapProcessing(t *testing.T) {
	resetTasks(t)
	ctx := context.Background()
	repo := repository.NewTaskRepo(testPool)
	now := time.Now().UTC()

	task := &models.Task{ID: uuid.New(), Input: "stuck", Status: models.TaskStatusPending, CreatedAt: now}
	require.NoError(t, repo.CreateTask(ctx, task))
	_, err := repo.ClaimOldestPending(ctx, "agent-1", now.Add(-time.Minute), now.Add(-10*time.Minute))
	require.NoError(t, err)

	n, err := repo.ReapProcessing(ctx, now.Add(-5*time.Minute), now, `{"type":"error","text":"timed out"}`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
}

// ---------------------------------------------------------------------------
// Skills, agents, orders
// ---------------------------------------------------------------------------

func TestSkillRepo_Search(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSkillRepo(testPool)
	cat := "cat-" + uuid.NewString()[:8]

	cheap := &models.Skill{ID: uuid.New(), Title: "Clarity 100%_safe patterns", Description: "post-conditions", PriceUnits: 500_000,
		ProviderIdentity: "p", ContentReference: "ipfs://c", Category: cat}
	dear := &models.Skill{ID: uuid.New(), Title: "Stacks indexer", Description: "clarity event decoding", PriceUnits: 5_000_000,
		ProviderIdentity: "p", ContentReference: "ipfs://d", Category: cat}
	require.NoError(t, repo.CreateSkill(ctx, cheap))
	require.NoError(t, repo.CreateSkill(ctx, dear))

	list, err := repo.SearchSkills(ctx, repository.SkillQuery{Keywords: []string{"clarity"}, Category: cat, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = repo.SearchSkills(ctx, repository.SkillQuery{Keywords: []string{"clarity"}, Category: cat, MinPriceUnits: 1_000_000, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, dear.ID, list[0].ID)

	list, err = repo.SearchSkills(ctx, repository.SkillQuery{Keywords: []string{"100%_"}, Category: cat, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1, "LIKE wildcards in keywords are literal")
	assert.Equal(t, "ipfs://c", list[0].ContentReference)
}

func TestSkillRepo_RanksBeforeLimit(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSkillRepo(testPool)
	cat := "cat-" + uuid.NewString()[:8]

	best := &models.Skill{ID: uuid.New(), Title: "Vacuum tuning", Description: "vacuum thresholds", PriceUnits: 1,
		ProviderIdentity: "p", ContentReference: "ipfs://best", Category: cat}
	require.NoError(t, repo.CreateSkill(ctx, best))
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateSkill(ctx, &models.Skill{ID: uuid.New(), Title: "Notes", Description: "mentions vacuum",
			PriceUnits: 1, ProviderIdentity: "p", ContentReference: "ipfs://n", Category: cat}))
	}

	list, err := repo.SearchSkills(ctx, repository.SkillQuery{Keywords: []string{"vacuum"}, Category: cat, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, best.ID, list[0].ID)
}

func TestAgentRepo_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAgentRepo(testPool)
	id := "agent-" + uuid.NewString()[:8]

	require.NoError(t, repo.CreateAgent(ctx, &models.Agent{ID: id, Name: "worker", SecretHash: "h", Trusted: true}))
	assert.ErrorIs(t, repo.CreateAgent(ctx, &models.Agent{ID: id, Name: "dup", SecretHash: "h"}), repository.ErrDuplicate)

	got, err := repo.GetAgent(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Trusted)

	_, err = repo.GetAgent(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLedger_OrderPerPayer(t *testing.T) {
	ctx := context.Background()
	skill := &models.Skill{ID: uuid.New(), Title: "t", Description: "d", PriceUnits: 1, ProviderIdentity: "p", ContentReference: "r", Category: "c"}
	require.NoError(t, repository.NewSkillRepo(testPool).CreateSkill(ctx, skill))
	svc := ledger.NewService(ledger.NewRepository(testPool))
	ref := "0x" + uuid.NewString()

	first, err := svc.Settle(ctx, "buyer", skill.ID, ref, 1, false)
	require.NoError(t, err)
	again, err := svc.Settle(ctx, "buyer", skill.ID, ref, 1, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := svc.Settle(ctx, "observer", skill.ID, ref, 1, false)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}
