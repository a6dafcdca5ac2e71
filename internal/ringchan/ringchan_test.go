package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDropsOldestWhenFull(t *testing.T) {
	rc := New[int](3)

	for i := 1; i <= 5; i++ {
		rc.Send(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
}

func TestTrySend(t *testing.T) {
	rc := New[string](1)

	assert.True(t, rc.TrySend("a"))
	assert.False(t, rc.TrySend("b"))

	require.Equal(t, "a", <-rc.C())
	assert.True(t, rc.TrySend("c"))
}

func TestCloseIsIdempotent(t *testing.T) {
	rc := New[int](1)

	rc.Close()
	assert.NotPanics(t, func() { rc.Close() })

	_, open := <-rc.C()
	assert.False(t, open)
}

func TestZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
