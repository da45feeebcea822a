package disk

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ncw/directio"
	"github.com/pkg/errors"

	"pinedb/pkg/storage/page"
)

// DiskManager 负责管理磁盘上的数据文件
// 读写以页为单位；从未写过的页读出来是全零，这是新分配页的正常引导路径
type DiskManager interface {
	ReadPage(pageID page.PageID, data []byte) error
	WritePage(pageID page.PageID, data []byte) error
	AllocatePage() page.PageID
	DeallocatePage(pageID page.PageID)
	Close() error
}

var ErrPageDeallocated = errors.New("page has been deallocated")

// FileDiskManager 是落盘实现
// 文件用 O_DIRECT 打开，绕过操作系统页缓存，读写都走对齐块
// (directio.BlockSize 和 page.Size 一样都是 4096，所以一块正好一页)
type FileDiskManager struct {
	mu          sync.Mutex
	dbFile      *os.File
	fileName    string
	nextPageID  page.PageID
	deallocated mapset.Set[page.PageID] // 已释放的页 ID，写入时拦截
}

// NewFileDiskManager 启动时打开或创建数据库文件
func NewFileDiskManager(dbFileName string) (*FileDiskManager, error) {
	// 确保目录存在
	dir := filepath.Dir(dbFileName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, errors.Wrap(err, "create db dir")
		}
	}

	file, err := directio.OpenFile(dbFileName, os.O_RDWR|os.O_CREATE, 0664)
	if err != nil {
		return nil, errors.Wrap(err, "open db file")
	}

	// 计算当前文件大小，从而确定 nextPageID
	// 比如文件大小是 8192 (2页)，那么下一个 ID 就是 2 (0, 1 已存在)
	fileInfo, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat db file")
	}

	return &FileDiskManager{
		dbFile:      file,
		fileName:    dbFileName,
		nextPageID:  page.PageID(fileInfo.Size() / page.Size),
		deallocated: mapset.NewSet[page.PageID](),
	}, nil
}

// Close 关闭文件句柄
func (d *FileDiskManager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dbFile.Close()
}

// ReadPage 从磁盘读取指定页的数据到 data 中
// 读到文件末尾之外（或者该页已释放）按约定填零返回
func (d *FileDiskManager) ReadPage(pageID page.PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.deallocated.Contains(pageID) {
		zeroFill(data)
		return nil
	}

	offset := int64(pageID) * int64(page.Size)

	fileInfo, err := d.dbFile.Stat()
	if err != nil {
		return errors.Wrap(err, "stat db file")
	}
	if offset >= fileInfo.Size() {
		zeroFill(data)
		return nil
	}

	if _, err := d.dbFile.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek to page %d", pageID)
	}

	// O_DIRECT 要求缓冲区对齐，所以先读进对齐块再拷出去
	block := directio.AlignedBlock(directio.BlockSize)
	bytesRead, err := d.dbFile.Read(block)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "read page %d", pageID)
	}

	copy(data, block[:bytesRead])
	if bytesRead < page.Size {
		zeroFill(data[bytesRead:])
	}
	return nil
}

// WritePage 将 data 写入磁盘上的指定页
func (d *FileDiskManager) WritePage(pageID page.PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.deallocated.Contains(pageID) {
		return errors.Wrapf(ErrPageDeallocated, "write page %d", pageID)
	}

	offset := int64(pageID) * int64(page.Size)
	if _, err := d.dbFile.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek to page %d", pageID)
	}

	block := directio.AlignedBlock(directio.BlockSize)
	copy(block, data)

	bytesWritten, err := d.dbFile.Write(block)
	if err != nil {
		return errors.Wrapf(err, "write page %d", pageID)
	}
	if bytesWritten != page.Size {
		return errors.Errorf("write page %d: wrote %d bytes, want %d", pageID, bytesWritten, page.Size)
	}

	// 高可靠性场景这里应该 Sync() 确保刷盘
	// 但为了性能，通常由 Checkpoint 机制批量 Sync
	return nil
}

// AllocatePage 分配一个新的页 ID
// 单调递增，释放过的 ID 不回收，调用方永远拿到没见过的 ID
func (d *FileDiskManager) AllocatePage() page.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage 释放一个页 ID
// 磁盘空间不回收，只记到集合里，防止后续误写
func (d *FileDiskManager) DeallocatePage(pageID page.PageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deallocated.Add(pageID)
}

func zeroFill(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
