package agent

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive402/backend/internal/completion"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/testserver"
	"github.com/hive402/backend/pkg/hiveclient"
	"github.com/hive402/backend/pkg/retry"
)

type scriptedQueue struct {
	mu            sync.Mutex
	claims        []claimReply
	completeErrs  []error
	completeCalls int
	completed     []models.TaskOutput
	outcomes      []string
}

type claimReply struct {
	task *models.Task
	err  error
}

func (q *scriptedQueue) Claim(context.Context, string) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.claims) == 0 {
		return nil, nil
	}
	r := q.claims[0]
	q.claims = q.claims[1:]
	return r.task, r.err
}

func (q *scriptedQueue) Complete(_ context.Context, _ uuid.UUID, outcome string, out models.TaskOutput) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completeCalls++
	if len(q.completeErrs) > 0 {
		err := q.completeErrs[0]
		q.completeErrs = q.completeErrs[1:]
		if err != nil {
			return err
		}
	}
	q.completed = append(q.completed, out)
	q.outcomes = append(q.outcomes, outcome)
	return nil
}

func TestStep_IntervalFollowsPollOutcome(t *testing.T) {
	q := &scriptedQueue{claims: []claimReply{
		{err: &hiveclient.StatusError{Code: http.StatusInternalServerError}},
		{err: errors.New("dial tcp: connection refused")},
		{err: &hiveclient.StatusError{Code: http.StatusUnauthorized}},
		{task: &models.Task{ID: uuid.New(), Input: "rollups"}},
	}}
	ex := NewExecutor(&fakeMarket{}, completion.NewScripted("unused"), Research{}, nil)
	l := NewLoop(q, ex, "agent-1")

	s := InitialState(DefaultBackoff())
	s = l.Step(context.Background(), s)
	assert.Equal(t, 22500*time.Millisecond, s.Interval)
	s = l.Step(context.Background(), s)
	assert.Equal(t, 33750*time.Millisecond, s.Interval)
	s = l.Step(context.Background(), s)
	assert.Equal(t, 33750*time.Millisecond, s.Interval)
	assert.Equal(t, PollRejected, s.LastOutcome)
	s = l.Step(context.Background(), s)
	assert.Equal(t, DefaultPollInterval, s.Interval)

	require.Len(t, q.completed, 1)
	assert.Equal(t, models.OutputNoSkillsFound, q.completed[0].Type)
	assert.Equal(t, []string{models.TaskStatusCompleted}, q.outcomes)
}

func TestStep_SubmitRetriesTransientFailures(t *testing.T) {
	fast := WithSubmitRetry(retry.Config{MaxAttempts: 4, BaseDelay: time.Millisecond})
	ex := NewExecutor(&fakeMarket{}, completion.NewScripted("unused"), Research{}, nil)

	t.Run("transport and 5xx are retried", func(t *testing.T) {
		q := &scriptedQueue{
			claims: []claimReply{{task: &models.Task{ID: uuid.New(), Input: "rollups"}}},
			completeErrs: []error{
				errors.New("connection reset by peer"),
				&hiveclient.StatusError{Code: http.StatusBadGateway},
			},
		}
		NewLoop(q, ex, "agent-1", fast).Step(context.Background(), InitialState(DefaultBackoff()))
		assert.Equal(t, 3, q.completeCalls)
		require.Len(t, q.completed, 1)
		assert.Equal(t, models.OutputNoSkillsFound, q.completed[0].Type)
	})

	t.Run("4xx is not retried", func(t *testing.T) {
		q := &scriptedQueue{
			claims:       []claimReply{{task: &models.Task{ID: uuid.New(), Input: "rollups"}}},
			completeErrs: []error{&hiveclient.StatusError{Code: http.StatusConflict}},
		}
		NewLoop(q, ex, "agent-1", fast).Step(context.Background(), InitialState(DefaultBackoff()))
		assert.Equal(t, 1, q.completeCalls)
		assert.Empty(t, q.completed)
	})
}

func TestRun_StopsOnCancel(t *testing.T) {
	q := &scriptedQueue{}
	ex := NewExecutor(&fakeMarket{}, completion.NewScripted("unused"), Research{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	polls := 0
	l := NewLoop(q, ex, "agent-1", WithSleep(func(ctx context.Context, _ time.Duration) error {
		polls++
		if polls > 3 {
			cancel()
		}
		return ctx.Err()
	}))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, 4, polls)
}

// TestEndToEnd_SentinelBecomesRecommendation runs the real API: the
// installed context does not cover the request, so the agent recommends
// the marketplace skill and the requester sees it in the task output.
func TestEndToEnd_SentinelBecomesRecommendation(t *testing.T) {
	srv := testserver.New(t, testserver.Options{})
	token := srv.RegisterAgent(t, "agent-1", false)
	installed := srv.AddSkill(t, &models.Skill{
		ID: uuid.New(), Title: "Redis eviction", Description: "maxmemory policies",
		PriceUnits: 500_000, ProviderIdentity: "agent:pk:ed25519:a", ContentReference: "ipfs://a", Category: "cache",
	})
	match := srv.AddSkill(t, &models.Skill{
		ID: uuid.New(), Title: "Kafka consumer lag", Description: "partition rebalancing and lag alerts",
		PriceUnits: 2_500_000, ProviderIdentity: "agent:pk:ed25519:b", ContentReference: "ipfs://b", Category: "streaming",
	})

	ctx := context.Background()
	requester := hiveclient.New(srv.URL, hiveclient.WithWait(10, 10*time.Millisecond))
	taskID, err := requester.Enqueue(ctx, "why is my kafka consumer lag growing?", installed.ID.String())
	require.NoError(t, err)

	worker := hiveclient.New(srv.URL, hiveclient.WithAgentToken(token))
	completer := completion.NewScripted(NoMatchSentinel)
	l := NewLoop(worker, NewExecutor(worker, completer, Research{}, nil), "agent-1")

	s := l.Step(ctx, InitialState(DefaultBackoff()))
	assert.Equal(t, PollClaimed, s.LastOutcome)

	final, err := requester.WaitForTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, final.Status)
	require.NotNil(t, final.Output)

	out, err := models.DecodeTaskOutput(*final.Output)
	require.NoError(t, err)
	assert.Equal(t, models.OutputRecommendation, out.Type)
	require.NotNil(t, out.Skill)
	assert.Equal(t, match.ID, out.Skill.ID)
	assert.Equal(t, match.PriceUnits, out.Skill.PriceUnits)
	assert.Equal(t, []string{"why is my kafka consumer lag growing?"}, completer.Prompts())
}
