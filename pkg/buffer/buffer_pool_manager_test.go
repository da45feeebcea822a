package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinedb/pkg/storage/disk"
	"pinedb/pkg/storage/page"
)

func TestBufferPoolManager(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	// 创建一个只有 2 个 Frame 的缓冲池
	bpm := NewBufferPoolManager(dm, 2, 2, nil)

	// 1. 创建 Page 0
	p0, err := bpm.NewPage()
	require.NoError(t, err)
	assert.Equal(t, page.PageID(0), p0.ID())

	// 写入一些数据到 Page 0，并标记为脏
	copy(p0.Data[:], []byte("Page 0 Data"))
	assert.True(t, bpm.UnpinPage(0, true))

	// 2. 创建 Page 1
	p1, err := bpm.NewPage()
	require.NoError(t, err)
	assert.Equal(t, page.PageID(1), p1.ID())
	copy(p1.Data[:], []byte("Page 1 Data"))
	assert.True(t, bpm.UnpinPage(1, true))

	// 此时 Pool 满了，两个帧都只被访问过一次（都在 young 链表）

	// 3. 创建 Page 2 -> 应该触发 Page 0 被驱逐 (Evict) 并刷盘
	p2, err := bpm.NewPage()
	require.NoError(t, err)
	assert.Equal(t, page.PageID(2), p2.ID())
	copy(p2.Data[:], []byte("Page 2 Data"))
	assert.True(t, bpm.UnpinPage(2, false))

	// 4. 再次读取 Page 0 -> 应该从磁盘读回来 (包含之前的写入)
	p0Read, err := bpm.FetchPage(0)
	require.NoError(t, err)
	// 验证数据是否还在 (说明驱逐时正确刷盘了)
	assert.Equal(t, "Page 0 Data", string(p0Read.Data[:11]))

	// 5. 验证 Page 1 也能读回来
	p1Read, err := bpm.FetchPage(1)
	require.NoError(t, err)
	assert.Equal(t, "Page 1 Data", string(p1Read.Data[:11]))

	assert.True(t, bpm.UnpinPage(0, false))
	assert.True(t, bpm.UnpinPage(1, false))
}

// 对应场景：池子 4 帧、K=2，驱逐要避开刚被再次访问的页
func TestBufferPoolManagerLRUKEviction(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	bpm := NewBufferPoolManager(dm, 4, 2, nil)

	// 建 4 个页，各写一笔数据后 Unpin
	ids := make([]page.PageID, 0, 4)
	for i := 0; i < 4; i++ {
		p, err := bpm.NewPage()
		require.NoError(t, err)
		copy(p.Data[:], []byte{byte(i + 1)})
		ids = append(ids, p.ID())
		assert.True(t, bpm.UnpinPage(p.ID(), true))
	}

	// 再访问一次第一个页：它的访问数到 2，进 K 链表
	p, err := bpm.FetchPage(ids[0])
	require.NoError(t, err)
	assert.True(t, bpm.UnpinPage(p.ID(), false))

	// 池子满了，新页要驱逐一个受害者
	// 其余三个页都只访问过一次（K-distance 无穷大），最早进来的 ids[1] 先走
	p5, err := bpm.NewPage()
	require.NoError(t, err)
	defer bpm.UnpinPage(p5.ID(), false)

	// 被驱逐的页是脏页，重用帧之前必须已经写回磁盘
	buf := make([]byte, page.Size)
	require.NoError(t, dm.ReadPage(ids[1], buf))
	assert.Equal(t, byte(2), buf[0])

	// 刚访问过的 ids[0] 还在内存里，fetch 不应该失败
	p0, err := bpm.FetchPage(ids[0])
	require.NoError(t, err)
	assert.Equal(t, byte(1), p0.Data[0])
	assert.True(t, bpm.UnpinPage(p0.ID(), false))
}

func TestBufferPoolManagerPinBehavior(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	bpm := NewBufferPoolManager(dm, 2, 2, nil)

	p0, err := bpm.NewPage()
	require.NoError(t, err)
	p1, err := bpm.NewPage()
	require.NoError(t, err)

	// 两个页都被 pin 住，池子分不出帧了
	_, err = bpm.NewPage()
	assert.ErrorIs(t, err, ErrPoolExhausted)
	_, err = bpm.FetchPage(100)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	// Unpin 没 pin 过的页 / 不在内存的页都返回 false
	assert.True(t, bpm.UnpinPage(p0.ID(), false))
	assert.False(t, bpm.UnpinPage(p0.ID(), false))
	assert.False(t, bpm.UnpinPage(999, false))

	// 放掉一个之后就能分出来了
	// p0 的帧会被新页复用（同一个 *Page），所以先记下它原来的 ID
	id0 := p0.ID()
	p2, err := bpm.NewPage()
	require.NoError(t, err)
	assert.NotEqual(t, id0, p2.ID())
	_ = p1
}

func TestBufferPoolManagerDeletePage(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	bpm := NewBufferPoolManager(dm, 2, 2, nil)

	p0, err := bpm.NewPage()
	require.NoError(t, err)
	id := p0.ID()

	// 被 pin 住的页不能删
	assert.False(t, bpm.DeletePage(id))

	assert.True(t, bpm.UnpinPage(id, true))
	assert.True(t, bpm.DeletePage(id))

	// 不在内存的页视为已删除
	assert.True(t, bpm.DeletePage(777))

	// 删除后 ID 不会被复用，新页拿到的是没见过的 ID
	p1, err := bpm.NewPage()
	require.NoError(t, err)
	assert.NotEqual(t, id, p1.ID())
}

func TestBufferPoolManagerFlush(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	bpm := NewBufferPoolManager(dm, 4, 2, nil)

	p0, err := bpm.NewPage()
	require.NoError(t, err)
	copy(p0.Data[:], []byte("flush me"))
	assert.True(t, bpm.UnpinPage(p0.ID(), true))

	// FlushPage 把脏页落盘
	assert.True(t, bpm.FlushPage(p0.ID()))
	buf := make([]byte, page.Size)
	require.NoError(t, dm.ReadPage(p0.ID(), buf))
	assert.Equal(t, "flush me", string(buf[:8]))

	// 不在内存的页 Flush 返回 false
	assert.False(t, bpm.FlushPage(123))

	// FlushAllPages 把驻留的页全部落盘
	p1, err := bpm.NewPage()
	require.NoError(t, err)
	copy(p1.Data[:], []byte("all"))
	bpm.UnpinPage(p1.ID(), true)
	bpm.FlushAllPages()
	require.NoError(t, dm.ReadPage(p1.ID(), buf))
	assert.Equal(t, "all", string(buf[:3]))
}
