package index

import (
	"pinedb/pkg/buffer"
	"pinedb/pkg/storage/page"
)

// TreeIterator 沿叶子链表按键序遍历
// 它只记 (pageID, index) 和当前条目的缓存，读守卫按需取、用完立刻放，
// 绝不跨用户代码持有守卫（所以也不会占着 pin 不放）
// 结束哨兵是 (InvalidPageID, -1)
type TreeIterator struct {
	bpm     *buffer.BufferPoolManager
	keySize int

	pageID page.PageID
	index  int
	key    []byte
	rid    page.RID
}

// Begin 定位到整棵树最小的键
// 下降时沿每个内部页的第 0 个孩子走；空树直接返回结束迭代器
func (t *BPlusTree) Begin() (*TreeIterator, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}
	rootID := page.NewHeaderPage(headerGuard.Page()).GetRootPageID()
	if rootID == page.InvalidPageID {
		headerGuard.Drop()
		return t.End(), nil
	}

	guard, err := t.bpm.FetchPageRead(rootID)
	headerGuard.Drop()
	if err != nil {
		return nil, err
	}

	node := page.NewBTreePage(guard.Page(), t.keySize)
	for !node.IsLeaf() {
		internal := page.NewInternalPage(guard.Page(), t.keySize)
		child, err := t.bpm.FetchPageRead(internal.ChildAt(0))
		if err != nil {
			guard.Drop()
			return nil, err
		}
		guard.Drop()
		guard = child
		node = page.NewBTreePage(guard.Page(), t.keySize)
	}

	leaf := page.NewLeafPage(guard.Page(), t.keySize)
	it := &TreeIterator{
		bpm:     t.bpm,
		keySize: t.keySize,
		pageID:  guard.PageID(),
		index:   0,
		key:     leaf.KeyAt(0),
		rid:     leaf.RIDAt(0),
	}
	guard.Drop()
	return it, nil
}

// BeginAt 定位到恰好等于 key 的条目；没有精确命中返回结束迭代器
func (t *BPlusTree) BeginAt(key []byte) (*TreeIterator, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}
	rootID := page.NewHeaderPage(headerGuard.Page()).GetRootPageID()
	if rootID == page.InvalidPageID {
		headerGuard.Drop()
		return t.End(), nil
	}

	guard, err := t.bpm.FetchPageRead(rootID)
	headerGuard.Drop()
	if err != nil {
		return nil, err
	}

	node := page.NewBTreePage(guard.Page(), t.keySize)
	for !node.IsLeaf() {
		internal := page.NewInternalPage(guard.Page(), t.keySize)
		childID, _ := internal.FindChild(key, t.cmp)
		child, err := t.bpm.FetchPageRead(childID)
		if err != nil {
			guard.Drop()
			return nil, err
		}
		guard.Drop()
		guard = child
		node = page.NewBTreePage(guard.Page(), t.keySize)
	}

	leaf := page.NewLeafPage(guard.Page(), t.keySize)
	rid, index, found := leaf.Lookup(key, t.cmp)
	if !found {
		guard.Drop()
		return t.End(), nil
	}

	it := &TreeIterator{
		bpm:     t.bpm,
		keySize: t.keySize,
		pageID:  guard.PageID(),
		index:   index,
		key:     leaf.KeyAt(index),
		rid:     rid,
	}
	guard.Drop()
	return it, nil
}

// End 返回结束哨兵
func (t *BPlusTree) End() *TreeIterator {
	return &TreeIterator{
		bpm:     t.bpm,
		keySize: t.keySize,
		pageID:  page.InvalidPageID,
		index:   -1,
	}
}

// Key 返回当前条目的键；结束迭代器上返回 nil
func (it *TreeIterator) Key() []byte {
	return it.key
}

// RID 返回当前条目的记录标识
func (it *TreeIterator) RID() page.RID {
	return it.rid
}

func (it *TreeIterator) IsEnd() bool {
	return it.pageID == page.InvalidPageID && it.index == -1
}

// Equals 比较两个迭代器是否指向同一个位置
func (it *TreeIterator) Equals(other *TreeIterator) bool {
	return it.pageID == other.pageID && it.index == other.index
}

// Next 前进一个条目
// 走到当前叶子末尾就跳到 nextPageID；链表尽头变成结束迭代器
func (it *TreeIterator) Next() error {
	if it.IsEnd() {
		return nil
	}

	guard, err := it.bpm.FetchPageRead(it.pageID)
	if err != nil {
		return err
	}
	leaf := page.NewLeafPage(guard.Page(), it.keySize)

	if it.index+1 < leaf.GetSize() {
		it.index++
		it.key = leaf.KeyAt(it.index)
		it.rid = leaf.RIDAt(it.index)
		guard.Drop()
		return nil
	}

	nextPageID := leaf.GetNextPageID()
	guard.Drop()

	if nextPageID == page.InvalidPageID {
		it.pageID = page.InvalidPageID
		it.index = -1
		it.key = nil
		it.rid = page.RID{}
		return nil
	}

	next, err := it.bpm.FetchPageRead(nextPageID)
	if err != nil {
		return err
	}
	nextLeaf := page.NewLeafPage(next.Page(), it.keySize)
	it.pageID = nextPageID
	it.index = 0
	it.key = nextLeaf.KeyAt(0)
	it.rid = nextLeaf.RIDAt(0)
	next.Drop()
	return nil
}
