package buffer

import (
	"pinedb/pkg/storage/page"
)

// 守卫是对"借来的帧"的作用域句柄：持有一个 pin（可能还有页锁），
// Drop 的时候按顺序放锁、放 pin。守卫是单一所有者，不要复制
// 提前 Drop 是安全的；忘了 Drop 会泄漏一个 pin

// BasicPageGuard 只持有 pin
// 调用方改了页内容要自己 SetDirty，释放时会把脏标记带给 UnpinPage
type BasicPageGuard struct {
	bpm     *BufferPoolManager
	page    *page.Page
	pageID  page.PageID
	isDirty bool
	dropped bool
}

// FetchPageBasic 取页并包成基础守卫
func (b *BufferPoolManager) FetchPageBasic(pageID page.PageID) (*BasicPageGuard, error) {
	p, err := b.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{bpm: b, page: p, pageID: p.ID()}, nil
}

// NewPageGuarded 分配新页并包成基础守卫
func (b *BufferPoolManager) NewPageGuarded() (*BasicPageGuard, error) {
	p, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{bpm: b, page: p, pageID: p.ID()}, nil
}

func (g *BasicPageGuard) Page() *page.Page {
	return g.page
}

// PageID 在守卫的生命周期内不会变
func (g *BasicPageGuard) PageID() page.PageID {
	return g.pageID
}

// SetDirty 声明调用方改过页内容
func (g *BasicPageGuard) SetDirty() {
	g.isDirty = true
}

// Drop 释放 pin，可以重复调用
func (g *BasicPageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.bpm.UnpinPage(g.pageID, g.isDirty)
	g.page = nil
}

// ReadPageGuard = pin + 页内容共享锁
type ReadPageGuard struct {
	bpm     *BufferPoolManager
	page    *page.Page
	pageID  page.PageID
	dropped bool
}

// FetchPageRead 取页、加共享锁
// 锁在 pin 之后拿，Drop 时先放锁再放 pin
func (b *BufferPoolManager) FetchPageRead(pageID page.PageID) (*ReadPageGuard, error) {
	p, err := b.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	p.RLatch()
	return &ReadPageGuard{bpm: b, page: p, pageID: p.ID()}, nil
}

func (g *ReadPageGuard) Page() *page.Page {
	return g.page
}

func (g *ReadPageGuard) PageID() page.PageID {
	return g.pageID
}

func (g *ReadPageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.page.RUnlatch()
	g.bpm.UnpinPage(g.pageID, false)
	g.page = nil
}

// WritePageGuard = pin + 页内容独占锁
// 写守卫默认调用方改过内容，释放时总是带脏标记
type WritePageGuard struct {
	bpm     *BufferPoolManager
	page    *page.Page
	pageID  page.PageID
	dropped bool
}

// FetchPageWrite 取页、加独占锁
func (b *BufferPoolManager) FetchPageWrite(pageID page.PageID) (*WritePageGuard, error) {
	p, err := b.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	p.WLatch()
	return &WritePageGuard{bpm: b, page: p, pageID: p.ID()}, nil
}

func (g *WritePageGuard) Page() *page.Page {
	return g.page
}

func (g *WritePageGuard) PageID() page.PageID {
	return g.pageID
}

func (g *WritePageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.page.WUnlatch()
	g.bpm.UnpinPage(g.pageID, true)
	g.page = nil
}
