package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 场景：分裂成两个叶子之后，迭代器要按 10,20,30,40 的顺序走完再变成 end
func TestIteratorAfterSplit(t *testing.T) {
	tree, _ := newTestTree(t, 10, smallConfig)

	for _, v := range []uint32{10, 20, 30, 40} {
		_, err := tree.Insert(key4(v), rid(v))
		require.NoError(t, err)
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	for _, want := range []uint32{10, 20, 30, 40} {
		assert.False(t, it.IsEnd())
		assert.Equal(t, key4(want), it.Key())
		assert.Equal(t, rid(want), it.RID())
		require.NoError(t, it.Next())
	}
	assert.True(t, it.IsEnd())

	// 结束之后再 Next 还是 end
	require.NoError(t, it.Next())
	assert.True(t, it.IsEnd())
	assert.True(t, it.Equals(tree.End()))
}

func TestIteratorEmptyTree(t *testing.T) {
	tree, _ := newTestTree(t, 10, smallConfig)

	it, err := tree.Begin()
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
	assert.Nil(t, it.Key())
}

func TestIteratorBeginAt(t *testing.T) {
	tree, _ := newTestTree(t, 10, smallConfig)

	for _, v := range []uint32{10, 20, 30, 40, 50} {
		_, err := tree.Insert(key4(v), rid(v))
		require.NoError(t, err)
	}

	// 精确命中：从 30 开始走到尾
	it, err := tree.BeginAt(key4(30))
	require.NoError(t, err)
	for _, want := range []uint32{30, 40, 50} {
		assert.False(t, it.IsEnd())
		assert.Equal(t, key4(want), it.Key())
		require.NoError(t, it.Next())
	}
	assert.True(t, it.IsEnd())

	// 没有精确命中就直接是 end
	it, err = tree.BeginAt(key4(35))
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
}

func TestIteratorEquality(t *testing.T) {
	tree, _ := newTestTree(t, 10, smallConfig)

	for _, v := range []uint32{10, 20} {
		_, err := tree.Insert(key4(v), rid(v))
		require.NoError(t, err)
	}

	a, err := tree.Begin()
	require.NoError(t, err)
	b, err := tree.Begin()
	require.NoError(t, err)

	// 相同位置相等，走一步就不等了
	assert.True(t, a.Equals(b))
	require.NoError(t, a.Next())
	assert.False(t, a.Equals(b))
	require.NoError(t, b.Next())
	assert.True(t, a.Equals(b))
}

// 大量乱序插入后全量扫描：顺序、个数、值都要对得上
func TestIteratorFullScan(t *testing.T) {
	tree, _ := newTestTree(t, 100, Config{LeafMaxSize: 16, InternalMaxSize: 16, KeySize: 4})

	n := 2000
	r := rand.New(rand.NewSource(7))
	keys := r.Perm(n)

	t.Logf("Inserting %d keys...", n)
	for _, k := range keys {
		ok, err := tree.Insert(key4(uint32(k)), rid(uint32(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	t.Log("Starting Iterator Scan...")

	it, err := tree.Begin()
	require.NoError(t, err)

	expected := uint32(0)
	count := 0
	for !it.IsEnd() {
		require.Equal(t, key4(expected), it.Key(), "order broken at %d", expected)
		require.Equal(t, rid(expected), it.RID())
		expected++
		count++
		require.NoError(t, it.Next())
	}

	assert.Equal(t, n, count, "iterator did not visit all records")
	t.Logf("Successfully iterated over %d records.", count)
}
