package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryJoinReplacesPreviousRoom(t *testing.T) {
	r := NewRegistry()

	r.Join("s", 1)
	r.Join("s", 2)

	assert.NotContains(t, r.MembersOf(1), "s")
	assert.Contains(t, r.MembersOf(2), "s")
	room, ok := r.RoomOf("s")
	assert.True(t, ok)
	assert.Equal(t, uint(2), room)
}

func TestRegistryLeave(t *testing.T) {
	r := NewRegistry()
	r.Join("a", 1)
	r.Join("b", 1)

	assert.True(t, r.Leave("a"))
	assert.False(t, r.Leave("a"))

	assert.ElementsMatch(t, []string{"b"}, r.MembersOf(1))
	_, ok := r.RoomOf("a")
	assert.False(t, ok)

	r.Leave("b")
	assert.Empty(t, r.MembersOf(1))
}

func TestRegistryMembersOfIsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Join("a", 1)

	members := r.MembersOf(1)
	r.Join("b", 1)

	assert.Equal(t, []string{"a"}, members)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			r.Join(id, uint(i%3))
			r.MembersOf(uint(i % 3))
			if i%2 == 0 {
				r.Leave(id)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for room := uint(0); room < 3; room++ {
		total += len(r.MembersOf(room))
	}
	assert.Equal(t, 50, total)
}
