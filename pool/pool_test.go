package pool_test

import (
	"testing"

	"github.com/mhaas/imgtool/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AppendReadUpdate(t *testing.T) {
	p := pool.New[string]()

	idx := p.Append("root")
	got, ok := p.Read(idx)
	require.True(t, ok)
	assert.Equal(t, "root", got)

	p.Update(idx, "renamed-root")
	got, ok = p.Read(idx)
	require.True(t, ok)
	assert.Equal(t, "renamed-root", got)
}

func TestPool_DeleteRecyclesIndex(t *testing.T) {
	p := pool.New[int]()

	first := p.Append(1)
	second := p.Append(2)
	assert.NotEqual(t, first, second)

	p.Delete(second)
	_, ok := p.Read(second)
	assert.False(t, ok, "deleted entry should not be readable")

	third := p.Append(3)
	assert.Equal(t, second, third, "recycled index should be reused")

	got, ok := p.Read(third)
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestPool_InUseCount(t *testing.T) {
	p := pool.New[int]()
	for i := 0; i < 100; i++ {
		p.Append(i)
	}
	assert.Equal(t, 100, p.InUseCount())

	p.Delete(pool.Index(5))
	p.Delete(pool.Index(90))
	assert.Equal(t, 98, p.InUseCount())
}
