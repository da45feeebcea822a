package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinedb/pkg/storage/page"
)

func TestFileDiskManager(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "test.db")

	dm, err := NewFileDiskManager(dbFile)
	require.NoError(t, err)
	defer dm.Close()

	// 1. 分配 Page 0
	pid := dm.AllocatePage()
	assert.Equal(t, page.PageID(0), pid)

	// 2. 写入数据
	data := make([]byte, page.Size)
	copy(data, []byte("Hello Database World!"))
	require.NoError(t, dm.WritePage(pid, data))

	// 3. 重新读取并验证
	readBuf := make([]byte, page.Size)
	require.NoError(t, dm.ReadPage(pid, readBuf))
	assert.Equal(t, "Hello Database World!", string(readBuf[:21]))

	// 4. 从未写过的页按约定读出全零
	pid2 := dm.AllocatePage()
	buf := make([]byte, page.Size)
	buf[0] = 0xFF
	require.NoError(t, dm.ReadPage(pid2, buf))
	assert.Equal(t, byte(0), buf[0])
}

func TestFileDiskManagerReopen(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "reopen.db")

	dm, err := NewFileDiskManager(dbFile)
	require.NoError(t, err)

	p0 := dm.AllocatePage()
	p1 := dm.AllocatePage()
	data := make([]byte, page.Size)
	copy(data, []byte("persisted"))
	require.NoError(t, dm.WritePage(p0, data))
	require.NoError(t, dm.WritePage(p1, data))
	require.NoError(t, dm.Close())

	// 重新打开：nextPageID 从文件大小推出来，不会撞上已有的页
	dm2, err := NewFileDiskManager(dbFile)
	require.NoError(t, err)
	defer dm2.Close()

	assert.Equal(t, page.PageID(2), dm2.AllocatePage())

	readBuf := make([]byte, page.Size)
	require.NoError(t, dm2.ReadPage(p0, readBuf))
	assert.Equal(t, "persisted", string(readBuf[:9]))
}

func TestFileDiskManagerDeallocate(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "dealloc.db")

	dm, err := NewFileDiskManager(dbFile)
	require.NoError(t, err)
	defer dm.Close()

	pid := dm.AllocatePage()
	data := make([]byte, page.Size)
	copy(data, []byte("doomed"))
	require.NoError(t, dm.WritePage(pid, data))

	dm.DeallocatePage(pid)

	// 已释放的页拒绝写入
	err = dm.WritePage(pid, data)
	assert.ErrorIs(t, err, ErrPageDeallocated)

	// 已释放的页读出全零
	readBuf := make([]byte, page.Size)
	readBuf[0] = 0xFF
	require.NoError(t, dm.ReadPage(pid, readBuf))
	assert.Equal(t, byte(0), readBuf[0])

	// ID 单调递增，释放过的不回收
	assert.Equal(t, page.PageID(1), dm.AllocatePage())
}

func TestMemoryDiskManager(t *testing.T) {
	dm := NewMemoryDiskManager()
	defer dm.Close()

	pid := dm.AllocatePage()
	assert.Equal(t, page.PageID(0), pid)

	data := make([]byte, page.Size)
	copy(data, []byte("in memory"))
	require.NoError(t, dm.WritePage(pid, data))

	readBuf := make([]byte, page.Size)
	require.NoError(t, dm.ReadPage(pid, readBuf))
	assert.Equal(t, "in memory", string(readBuf[:9]))

	// 语义和文件版一致：没写过的页全零、释放后拒绝写
	pid2 := dm.AllocatePage()
	readBuf[0] = 0xFF
	require.NoError(t, dm.ReadPage(pid2, readBuf))
	assert.Equal(t, byte(0), readBuf[0])

	dm.DeallocatePage(pid)
	assert.ErrorIs(t, dm.WritePage(pid, data), ErrPageDeallocated)
}
