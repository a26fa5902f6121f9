package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSessionIDIsSortableAndUnique(t *testing.T) {
	t.Parallel()

	now := time.Now()
	seen := map[string]struct{}{}
	prev := ""
	for i := 0; i < 100; i++ {
		id := NewSessionID(now)
		require.Len(t, id, 26)
		require.True(t, IsSessionID(id))
		require.Greater(t, id, prev)

		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
		prev = id
	}
}

func TestIsSessionIDRejectsGarbage(t *testing.T) {
	t.Parallel()

	require.False(t, IsSessionID(""))
	require.False(t, IsSessionID("not-a-ulid"))
}
