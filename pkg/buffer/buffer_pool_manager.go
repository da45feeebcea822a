package buffer

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pinedb/pkg/storage/disk"
	"pinedb/pkg/storage/page"
)

// ErrPoolExhausted 表示没有空闲帧也没有可驱逐的帧
// 根因几乎总是调用方同时持有太多守卫（pin 没放）
var ErrPoolExhausted = errors.New("buffer pool exhausted: no free frame and no evictable frame")

// BufferPoolManager 管理固定数量的内存帧，在内存和磁盘之间搬运页面
// 一把大锁串行化所有元数据操作（空闲链表、页表、pin 计数、replacer 交互），
// 锁内的磁盘读写也跟着全局串行，这是约定好的契约
// 锁序：先拿 bpm.mu 再进 replacer 的锁，不允许反过来
type BufferPoolManager struct {
	mu          sync.Mutex
	diskManager disk.DiskManager
	pages       []*page.Page        // 实际的内存池 (数组大小固定)
	replacer    *LRUKReplacer       // LRU-K 替换算法
	freeList    []int               // 空闲的 FrameID 列表
	pageTable   map[page.PageID]int // 映射表: PageID -> FrameID
	log         *zap.Logger
}

// NewBufferPoolManager 初始化
// logger 传 nil 表示不输出日志
func NewBufferPoolManager(diskManager disk.DiskManager, poolSize int, replacerK int, logger *zap.Logger) *BufferPoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	bpm := &BufferPoolManager{
		diskManager: diskManager,
		pages:       make([]*page.Page, poolSize),
		replacer:    NewLRUKReplacer(replacerK),
		freeList:    make([]int, poolSize),
		pageTable:   make(map[page.PageID]int),
		log:         logger,
	}

	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = &page.Page{} // 预分配内存对象
		bpm.pages[i].SetID(page.InvalidPageID)
		bpm.freeList[i] = i // 初始时所有 Frame 都是空闲的
	}

	return bpm
}

// NewPage 分配一个新的磁盘页，并将其放入缓存
// 返回的页 pin 计数为 1、不脏，帧已记录访问且不可驱逐
func (b *BufferPoolManager) NewPage() (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// 1. 寻找空闲 Frame
	frameID, err := b.findVictimFrame()
	if err != nil {
		return nil, err
	}

	// 2. 在磁盘分配新 PageID
	newPageID := b.diskManager.AllocatePage()

	// 3. 初始化内存页对象
	p := b.pages[frameID]
	p.SetID(newPageID)
	p.SetPinCount(1)
	p.SetDirty(false) // 新页一开始是空的，不算脏（或者看作全是0）
	p.Clear()         // 清空之前遗留的数据

	// 4. 更新映射和 LRU-K
	b.pageTable[newPageID] = frameID
	b.replacer.RecordAccess(frameID)
	b.replacer.SetEvictable(frameID, false)

	return p, nil
}

// FetchPage 核心方法：获取一个页面
// 1. 如果在缓存中，直接返回
// 2. 如果不在，从磁盘读取到缓存（可能需要驱逐旧页）
func (b *BufferPoolManager) FetchPage(pageID page.PageID) (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// 1. 缓存命中 (Cache Hit)
	if frameID, ok := b.pageTable[pageID]; ok {
		p := b.pages[frameID]
		p.SetPinCount(p.PinCount() + 1)
		b.replacer.RecordAccess(frameID)
		b.replacer.SetEvictable(frameID, false) // 标记为正在使用，阻止被驱逐
		return p, nil
	}

	// 2. 缓存未命中 (Cache Miss)，需要找一个空闲 Frame
	frameID, err := b.findVictimFrame()
	if err != nil {
		return nil, err
	}

	// 3. 从磁盘读取数据
	// 注意：findVictimFrame 已经处理了脏页刷盘和旧映射移除
	p := b.pages[frameID]
	p.SetID(pageID)
	p.SetPinCount(1)
	p.SetDirty(false)

	// 真正读取（从未写过的页按约定读出全零）
	if err := b.diskManager.ReadPage(pageID, p.Data[:]); err != nil {
		// 读失败要把帧还回去，不然这一帧就永久丢了
		p.SetID(page.InvalidPageID)
		p.SetPinCount(0)
		b.freeList = append(b.freeList, frameID)
		return nil, err
	}

	// 4. 更新映射表和 LRU-K
	b.pageTable[pageID] = frameID
	b.replacer.RecordAccess(frameID)
	b.replacer.SetEvictable(frameID, false)

	return p, nil
}

// UnpinPage 核心方法：释放一个页面
// isDirty: 如果调用者修改了页面，必须传 true
// 页不在内存或者本来就没被 pin 时返回 false
func (b *BufferPoolManager) UnpinPage(pageID page.PageID, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return false
	}

	p := b.pages[frameID]
	if p.PinCount() <= 0 {
		return false
	}

	// 递减引用计数
	p.SetPinCount(p.PinCount() - 1)

	// 如果是脏的，标记一下（注意是 OR 操作，不能把脏页标记回干净）
	if isDirty {
		p.SetDirty(true)
	}

	// 如果没人用了，通知替换算法这个 Frame 可以被淘汰了
	if p.PinCount() == 0 {
		b.replacer.SetEvictable(frameID, true)
	}

	return true
}

// FlushPage 强制将某个页面刷盘，不影响 pin 计数和可驱逐状态
func (b *BufferPoolManager) FlushPage(pageID page.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return false
	}

	p := b.pages[frameID]
	if err := b.diskManager.WritePage(pageID, p.Data[:]); err != nil {
		b.log.Error("flush page failed", zap.Int32("page", int32(pageID)), zap.Error(err))
		return false
	}
	p.SetDirty(false) // 刷盘后变干净了
	return true
}

// FlushAllPages 把当前驻留的页全部刷盘
func (b *BufferPoolManager) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pages {
		if p.ID() == page.InvalidPageID {
			continue
		}
		if err := b.diskManager.WritePage(p.ID(), p.Data[:]); err != nil {
			b.log.Error("flush page failed", zap.Int32("page", int32(p.ID())), zap.Error(err))
			continue
		}
		p.SetDirty(false)
	}
}

// DeletePage 把页面从缓冲池中删除并释放它的页 ID
// 页不在内存时视为已删除返回 true；被 pin 住时返回 false
func (b *BufferPoolManager) DeletePage(pageID page.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		// 页面不在内存中，直接通知磁盘释放
		b.diskManager.DeallocatePage(pageID)
		return true
	}

	targetPage := b.pages[frameID]

	// 如果页面被钉住（正在使用），则无法删除
	if targetPage.PinCount() > 0 {
		return false
	}

	// 1. 从页表和替换算法中移除
	delete(b.pageTable, pageID)
	b.replacer.Remove(frameID)

	// 2. 将 Frame 放回空闲列表
	b.freeList = append(b.freeList, frameID)

	// 3. 重置内存页元数据
	targetPage.SetID(page.InvalidPageID)
	targetPage.SetPinCount(0)
	targetPage.SetDirty(false)
	targetPage.Clear()

	// 4. 通知磁盘释放
	b.diskManager.DeallocatePage(pageID)

	return true
}

// findVictimFrame 辅助方法：寻找可用的 FrameID
// 如果 freeList 有空闲，直接用；否则从 LRU-K 驱逐一个
func (b *BufferPoolManager) findVictimFrame() (int, error) {
	// 1. 优先从 FreeList 拿
	if len(b.freeList) > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frameID, nil
	}

	// 2. FreeList 空了，求助替换算法
	frameID, ok := b.replacer.Evict()
	if !ok {
		return -1, ErrPoolExhausted
	}

	// 3. 驱逐旧页前，检查是否需要写回磁盘 (Eviction Logic)
	victimPage := b.pages[frameID]
	if victimPage.IsDirty() {
		if err := b.diskManager.WritePage(victimPage.ID(), victimPage.Data[:]); err != nil {
			return -1, errors.Wrapf(err, "write back victim page %d", victimPage.ID())
		}
	}

	b.log.Debug("evict frame",
		zap.Int("frame", frameID),
		zap.Int32("page", int32(victimPage.ID())),
		zap.Bool("dirty", victimPage.IsDirty()))

	// 4. 从映射表中移除旧页，清空帧
	delete(b.pageTable, victimPage.ID())
	victimPage.Clear()
	victimPage.SetID(page.InvalidPageID)
	victimPage.SetDirty(false)

	return frameID, nil
}
