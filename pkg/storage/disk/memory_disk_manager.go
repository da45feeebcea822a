package disk

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dsnet/golib/memfile"
	"github.com/pkg/errors"

	"pinedb/pkg/storage/page"
)

// MemoryDiskManager 是内存实现，接口语义和文件版一致
// 测试和临时树用它，省去文件清理
type MemoryDiskManager struct {
	mu          sync.Mutex
	db          *memfile.File
	nextPageID  page.PageID
	deallocated mapset.Set[page.PageID]
}

func NewMemoryDiskManager() *MemoryDiskManager {
	return &MemoryDiskManager{
		db:          memfile.New(make([]byte, 0)),
		deallocated: mapset.NewSet[page.PageID](),
	}
}

func (d *MemoryDiskManager) ReadPage(pageID page.PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.deallocated.Contains(pageID) {
		zeroFill(data)
		return nil
	}

	offset := int64(pageID) * int64(page.Size)
	size := int64(len(d.db.Bytes()))
	if offset >= size {
		// 从没写过的页，按约定读出全零
		zeroFill(data)
		return nil
	}

	n, err := d.db.ReadAt(data, offset)
	if err != nil && n < len(data) {
		zeroFill(data[n:])
	}
	return nil
}

func (d *MemoryDiskManager) WritePage(pageID page.PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.deallocated.Contains(pageID) {
		return errors.Wrapf(ErrPageDeallocated, "write page %d", pageID)
	}

	offset := int64(pageID) * int64(page.Size)
	_, err := d.db.WriteAt(data, offset)
	return errors.Wrapf(err, "write page %d", pageID)
}

func (d *MemoryDiskManager) AllocatePage() page.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

func (d *MemoryDiskManager) DeallocatePage(pageID page.PageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deallocated.Add(pageID)
}

func (d *MemoryDiskManager) Close() error {
	return nil
}
