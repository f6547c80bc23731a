package worker_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoaction/internal/apperror"
	"ecoaction/internal/cache"
	"ecoaction/internal/model"
	"ecoaction/internal/queue"
	"ecoaction/internal/worker"
)

// =============================================================================
// Mock Implementations
// =============================================================================

type mockUsers struct {
	mu     sync.Mutex
	points map[int64]int64
}

func (m *mockUsers) set(userID, points int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[userID] = points
}

func (m *mockUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &model.User{ID: id, Points: p}, nil
}

type notifyCall struct {
	kind                     string
	requester, addressee, id int64
}

type mockNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (m *mockNotifier) NotifyFriendRequest(_ context.Context, requesterID, addresseeID, friendshipID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, notifyCall{"request", requesterID, addresseeID, friendshipID})
	return nil
}

func (m *mockNotifier) NotifyFriendAccepted(_ context.Context, requesterID, addresseeID, friendshipID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, notifyCall{"accepted", requesterID, addresseeID, friendshipID})
	return nil
}

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestHandler_PointsChangedUpdatesLeaderboard(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)
	lb := cache.NewLeaderboardCache(client, slog.Default())
	users := &mockUsers{points: map[int64]int64{1: 15, 2: 40}}
	h := worker.NewHandler(lb, users, nil, slog.Default())
	require.NoError(t, lb.Warm(ctx, []cache.ScoreEntry{{UserID: 1, Points: 0}, {UserID: 2, Points: 0}}))

	require.NoError(t, h.HandleEvent(ctx, queue.NewPointsChangedEvent(1)))
	require.NoError(t, h.HandleEvent(ctx, queue.NewPointsChangedEvent(2)))
	// Redelivery of the same event leaves the same total.
	require.NoError(t, h.HandleEvent(ctx, queue.NewPointsChangedEvent(2)))

	top, err := lb.Top(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []cache.ScoreEntry{{UserID: 2, Points: 40}, {UserID: 1, Points: 15}}, top)
}

func TestHandler_PointsChangedLeavesColdCacheAlone(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)
	lb := cache.NewLeaderboardCache(client, slog.Default())
	h := worker.NewHandler(lb, &mockUsers{points: map[int64]int64{1: 15}}, nil, slog.Default())

	require.NoError(t, h.HandleEvent(ctx, queue.NewPointsChangedEvent(1)))

	size, err := lb.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestHandler_PointsChangedUnknownUser(t *testing.T) {
	client := setupTestRedis(t)
	h := worker.NewHandler(cache.NewLeaderboardCache(client, slog.Default()), &mockUsers{points: map[int64]int64{}}, nil, slog.Default())

	err := h.HandleEvent(context.Background(), queue.NewPointsChangedEvent(99))
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestHandler_FriendEventsNotify(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)
	notifier := &mockNotifier{}
	h := worker.NewHandler(cache.NewLeaderboardCache(client, slog.Default()), &mockUsers{points: map[int64]int64{}}, notifier, slog.Default())

	require.NoError(t, h.HandleEvent(ctx, queue.NewFriendRequestSentEvent(5, 1, 2)))
	require.NoError(t, h.HandleEvent(ctx, queue.NewFriendRequestAcceptedEvent(5, 1, 2)))

	assert.Equal(t, []notifyCall{
		{"request", 1, 2, 5},
		{"accepted", 1, 2, 5},
	}, notifier.calls)
}

func TestHandler_FriendEventsWithoutNotifier(t *testing.T) {
	client := setupTestRedis(t)
	h := worker.NewHandler(cache.NewLeaderboardCache(client, slog.Default()), &mockUsers{points: map[int64]int64{}}, nil, slog.Default())

	assert.NoError(t, h.HandleEvent(context.Background(), queue.NewFriendRequestSentEvent(5, 1, 2)))
}

func TestHandler_UnknownEventType(t *testing.T) {
	client := setupTestRedis(t)
	h := worker.NewHandler(cache.NewLeaderboardCache(client, slog.Default()), &mockUsers{points: map[int64]int64{}}, nil, slog.Default())

	err := h.HandleEvent(context.Background(), queue.ActivityEvent{Type: "post_created"})
	assert.Error(t, err)
}

// =============================================================================
// Manager Integration Test
// =============================================================================

func TestManager_ConsumesPublishedEvents(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)
	lb := cache.NewLeaderboardCache(client, slog.Default())
	users := &mockUsers{points: map[int64]int64{}}
	handler := worker.NewHandler(lb, users, nil, slog.Default())

	consumer := queue.NewConsumer(client, slog.Default())
	publisher := queue.NewPublisher(client, slog.Default())

	manager := worker.NewManager(consumer, handler, worker.ManagerConfig{
		WorkerCount:  2,
		BatchSize:    5,
		BlockTimeout: 50 * time.Millisecond,
	}, slog.Default())
	require.NoError(t, manager.Start(ctx))
	defer manager.Stop()

	require.NoError(t, lb.Warm(ctx, []cache.ScoreEntry{{UserID: 3, Points: 50}}))
	users.set(7, 120)
	_, err := publisher.Publish(ctx, queue.StreamActivity, queue.NewPointsChangedEvent(7))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		top, err := lb.Top(ctx, 1)
		return err == nil && len(top) == 1 && top[0].Points == 120
	}, 3*time.Second, 25*time.Millisecond)

	require.Eventually(t, func() bool {
		pending, err := consumer.Pending(ctx, queue.StreamActivity, queue.ConsumerGroupActivity)
		return err == nil && pending == 0
	}, 3*time.Second, 25*time.Millisecond)
}

func TestManager_StopWithoutStart(t *testing.T) {
	client := setupTestRedis(t)
	m := worker.NewManager(queue.NewConsumer(client, slog.Default()), nil, worker.DefaultManagerConfig(), slog.Default())
	m.Stop()
}
