package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CUknot/roomchat/database/dbtest"
	"github.com/CUknot/roomchat/models"
	"github.com/CUknot/roomchat/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (r *recorder) Deliver(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recorder) messages(t *testing.T) []MessageView {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]MessageView, 0, len(r.payloads))
	for _, p := range r.payloads {
		var event struct {
			Type    string      `json:"type"`
			Payload MessageView `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(p, &event))
		require.Equal(t, EventNewMessage, event.Type)
		views = append(views, event.Payload)
	}
	return views
}

type failingSink struct{}

func (failingSink) Deliver(ctx context.Context, payload []byte) error {
	return fmt.Errorf("connection closed")
}

type stalledSink struct{}

func (stalledSink) Deliver(ctx context.Context, payload []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

type fixedLimiter struct {
	allowed bool
}

func (l fixedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.allowed, nil
}

type fixture struct {
	store      *repository.Store
	registry   *Registry
	controller *Controller
	bob        *models.User
}

func setup(t *testing.T, max int, limiter Limiter) *fixture {
	t.Helper()
	store := repository.NewStore(dbtest.New(t))
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, 100*time.Millisecond)

	bob := &models.User{Username: "bob", Email: "bob@test.com", Password: "cat"}
	require.NoError(t, store.CreateUser(context.Background(), bob))

	return &fixture{
		store:      store,
		registry:   registry,
		controller: NewController(store, registry, broadcaster, RetentionPolicy{Max: max}, limiter),
		bob:        bob,
	}
}

func (f *fixture) room(t *testing.T, id uint) *models.Room {
	t.Helper()
	room := &models.Room{ID: id, Name: fmt.Sprintf("room %d", id), CreatorID: f.bob.ID}
	require.NoError(t, f.store.CreateRoom(context.Background(), room))
	return room
}

func (f *fixture) session(t *testing.T, id string, roomID uint) (*Session, *recorder) {
	t.Helper()
	sink := &recorder{}
	s := NewSession(id, f.bob, sink)
	require.NoError(t, f.controller.Connect(context.Background(), s, roomID))
	return s, sink
}

func TestRetentionKeepsMostRecent(t *testing.T) {
	f := setup(t, 20, nil)
	ctx := context.Background()
	room := f.room(t, 1)

	for i := 1; i <= 25; i++ {
		_, err := f.controller.Publish(ctx, f.bob, room.ID, fmt.Sprintf("message %d", i))
		require.NoError(t, err)

		count, err := f.store.CountMessages(ctx, room.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, int64(20))
	}

	history, err := f.store.RecentMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 20)
	for i, m := range history {
		assert.Equal(t, fmt.Sprintf("message %d", i+6), m.Text)
	}
}

func TestRetentionOrdersByTimestamp(t *testing.T) {
	f := setup(t, 2, nil)
	ctx := context.Background()
	room := f.room(t, 1)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, offset := range []int{2, 0, 1} {
		require.NoError(t, f.store.CreateMessage(ctx, &models.Message{
			Text:     fmt.Sprintf("t%d", offset),
			SenderID: f.bob.ID,
			RoomID:   room.ID,
			SentAt:   base.Add(time.Duration(offset) * time.Minute),
		}), "insert %d", i)
	}

	err := f.store.Transaction(ctx, func(tx *repository.Store) error {
		return RetentionPolicy{Max: 2}.Enforce(ctx, tx, room.ID)
	})
	require.NoError(t, err)

	history, err := f.store.RecentMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "t1", history[0].Text)
	assert.Equal(t, "t2", history[1].Text)
}

func TestRetentionZeroKeepsNothing(t *testing.T) {
	f := setup(t, 0, nil)
	ctx := context.Background()
	room := f.room(t, 1)
	_, sink := f.session(t, "a", room.ID)

	msg, err := f.controller.Publish(ctx, f.bob, room.ID, "gone")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)

	count, err := f.store.CountMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	views := sink.messages(t)
	require.Len(t, views, 1)
	assert.Equal(t, "gone", views[0].Text)
}

func TestBroadcastScopedToRoom(t *testing.T) {
	f := setup(t, 20, nil)
	ctx := context.Background()
	f.room(t, 7)
	f.room(t, 8)
	a, sinkA := f.session(t, "a", 7)
	_, sinkB := f.session(t, "b", 7)
	_, sinkC := f.session(t, "c", 8)

	_, err := f.controller.SendMessage(ctx, a, 7, "hi")
	require.NoError(t, err)

	for _, sink := range []*recorder{sinkA, sinkB} {
		views := sink.messages(t)
		require.Len(t, views, 1)
		assert.Equal(t, "hi", views[0].Text)
		assert.Equal(t, "bob", views[0].SenderUsername)
		assert.Equal(t, uint(7), views[0].RoomID)
		assert.Contains(t, views[0].AvatarURL, "s=25")
		assert.False(t, views[0].SentAt.IsZero())
	}
	assert.Empty(t, sinkC.messages(t))
}

func TestBroadcastPreservesOrderPerRecipient(t *testing.T) {
	f := setup(t, 20, nil)
	ctx := context.Background()
	f.room(t, 1)
	_, sink := f.session(t, "a", 1)

	for i := 0; i < 10; i++ {
		_, err := f.controller.Publish(ctx, f.bob, 1, fmt.Sprintf("%d", i))
		require.NoError(t, err)
	}

	views := sink.messages(t)
	require.Len(t, views, 10)
	for i, v := range views {
		assert.Equal(t, fmt.Sprintf("%d", i), v.Text)
	}
}

func TestBroadcastSurvivesDeadAndSlowSessions(t *testing.T) {
	registry := NewRegistry()
	b := NewBroadcaster(registry, 50*time.Millisecond)
	live := &recorder{}
	for id, sink := range map[string]Sink{"live": live, "dead": failingSink{}, "slow": stalledSink{}} {
		registry.Join(id, 1)
		b.Attach(id, sink)
	}

	start := time.Now()
	delivered := b.Broadcast(context.Background(), 1, []byte(`{}`))

	assert.Equal(t, 1, delivered)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, live.payloads, 1)
}

func TestBroadcastSkipsDetachedSessions(t *testing.T) {
	registry := NewRegistry()
	b := NewBroadcaster(registry, time.Second)
	sink := &recorder{}
	registry.Join("a", 1)
	b.Attach("a", sink)
	b.Detach("a")

	assert.Zero(t, b.Broadcast(context.Background(), 1, []byte(`{}`)))
}

func TestJoinAnotherRoom(t *testing.T) {
	f := setup(t, 20, nil)
	ctx := context.Background()
	f.room(t, 1)
	f.room(t, 2)
	s, _ := f.session(t, "a", 1)

	require.NoError(t, f.controller.Join(ctx, s, 2))

	state, room := s.State()
	assert.Equal(t, StateInRoom, state)
	assert.Equal(t, uint(2), room)
	assert.NotContains(t, f.registry.MembersOf(1), "a")
	assert.Contains(t, f.registry.MembersOf(2), "a")

	_, err := f.controller.SendMessage(ctx, s, 1, "wrong room")
	assert.ErrorIs(t, err, ErrNotInRoom)
	assert.ErrorIs(t, f.controller.Join(ctx, s, 99), ErrNotFound)
}

func TestConnectWithoutRoom(t *testing.T) {
	f := setup(t, 20, nil)
	ctx := context.Background()
	f.room(t, 1)
	s, _ := f.session(t, "a", 0)

	state, _ := s.State()
	assert.Equal(t, StateConnected, state)
	_, err := f.controller.SendMessage(ctx, s, 1, "hi")
	assert.ErrorIs(t, err, ErrNotInRoom)

	other := NewSession("b", f.bob, &recorder{})
	assert.ErrorIs(t, f.controller.Connect(ctx, other, 42), ErrNotFound)
	state, _ = other.State()
	assert.Equal(t, StateConnected, state)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := setup(t, 20, nil)
	ctx := context.Background()
	f.room(t, 1)
	s, _ := f.session(t, "a", 1)
	_, sinkB := f.session(t, "b", 1)

	f.controller.Disconnect(s)
	f.controller.Disconnect(s)

	state, _ := s.State()
	assert.Equal(t, StateDisconnected, state)
	assert.Equal(t, []string{"b"}, f.registry.MembersOf(1))
	_, err := f.controller.SendMessage(ctx, s, 1, "late")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, f.controller.Connect(ctx, s, 1), ErrNotConnected)
	assert.Empty(t, sinkB.messages(t))
}

func TestPublishValidatesText(t *testing.T) {
	f := setup(t, 20, nil)
	ctx := context.Background()
	f.room(t, 1)

	_, err := f.controller.Publish(ctx, f.bob, 1, "   ")
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = f.controller.Publish(ctx, f.bob, 1, strings.Repeat("я", 201))
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = f.controller.Publish(ctx, f.bob, 1, strings.Repeat("я", 200))
	assert.NoError(t, err)
}

func TestPublishUnknownRoom(t *testing.T) {
	f := setup(t, 20, nil)

	_, err := f.controller.Publish(context.Background(), f.bob, 404, "hi")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishWriteFailureIsNotBroadcast(t *testing.T) {
	f := setup(t, 20, nil)
	ctx := context.Background()
	f.room(t, 1)
	_, sink := f.session(t, "a", 1)
	ghost := &models.User{ID: 999, Username: "ghost", Email: "ghost@test.com"}

	_, err := f.controller.Publish(ctx, ghost, 1, "boo")

	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.Empty(t, sink.messages(t))
	count, err := f.store.CountMessages(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPublishRateLimited(t *testing.T) {
	f := setup(t, 20, fixedLimiter{allowed: false})
	f.room(t, 1)

	_, err := f.controller.Publish(context.Background(), f.bob, 1, "hi")

	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestConcurrentPublishKeepsCapAndOrder(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	rooms := []uint{f.room(t, 1).ID, f.room(t, 2).ID}
	_, first := f.session(t, "s1", rooms[0])
	_, second := f.session(t, "s2", rooms[1])

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		roomID := rooms[i%2]
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.controller.Publish(ctx, f.bob, roomID, fmt.Sprintf("message %d", i))
			assert.NoError(t, err)

			count, err := f.store.CountMessages(ctx, roomID)
			assert.NoError(t, err)
			assert.LessOrEqual(t, count, int64(5))
		}(i)
	}
	wg.Wait()

	for i, sink := range []*recorder{first, second} {
		views := sink.messages(t)
		require.Len(t, views, 20)
		for j := 1; j < len(views); j++ {
			assert.Equal(t, rooms[i], views[j].RoomID)
			assert.Greater(t, views[j].ID, views[j-1].ID, "deliveries must follow commit order")
		}

		kept, err := f.store.RecentMessages(ctx, rooms[i])
		require.NoError(t, err)
		require.Len(t, kept, 5)
		assert.Equal(t, views[len(views)-1].ID, kept[len(kept)-1].ID)
	}
}

func TestDeleteRoomReleasesLock(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	room := f.room(t, 1)

	_, err := f.controller.Publish(ctx, f.bob, room.ID, "hello")
	require.NoError(t, err)
	assert.Len(t, f.controller.roomLocks, 1)

	require.NoError(t, f.controller.DeleteRoom(ctx, room.ID))
	assert.Empty(t, f.controller.roomLocks)

	exists, err := f.store.RoomExists(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.controller.Publish(ctx, f.bob, room.ID, "hello")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.controller.DeleteRoom(ctx, room.ID), repository.ErrNotFound)
}
