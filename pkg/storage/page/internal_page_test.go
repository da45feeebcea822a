package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 手工摆一个内部页: 孩子 [p10, p20, p30]，分隔键 20/30
// 语义：p10 < 20 <= p20 < 30 <= p30
func buildInternal(t *testing.T) *InternalPage {
	node := NewInternalPage(&Page{}, 4)
	node.Init(InvalidPageID, 8)

	node.SetChildAt(0, 10)
	node.SetEntryAt(1, key4(20), 20)
	node.SetEntryAt(2, key4(30), 30)
	node.SetSize(3)
	return node
}

func TestInternalPageFindChild(t *testing.T) {
	node := buildInternal(t)

	// 比所有分隔键都小 -> 第 0 个孩子
	child, index := node.FindChild(key4(5), CompareBytes)
	assert.Equal(t, PageID(10), child)
	assert.Equal(t, 0, index)

	// 等于分隔键 -> 分隔键右边的孩子
	child, index = node.FindChild(key4(20), CompareBytes)
	assert.Equal(t, PageID(20), child)
	assert.Equal(t, 1, index)

	child, _ = node.FindChild(key4(25), CompareBytes)
	assert.Equal(t, PageID(20), child)

	child, index = node.FindChild(key4(99), CompareBytes)
	assert.Equal(t, PageID(30), child)
	assert.Equal(t, 2, index)
}

func TestInternalPageInsert(t *testing.T) {
	node := buildInternal(t)

	// 按序插入新分隔键
	node.Insert(key4(25), 25, CompareBytes)
	assert.Equal(t, 4, node.GetSize())
	assert.Equal(t, key4(25), node.KeyAt(2))
	assert.Equal(t, PageID(25), node.ChildAt(2))
	assert.Equal(t, key4(30), node.KeyAt(3))

	// 比现有键都小的分隔键落在下标 1
	node.Insert(key4(15), 15, CompareBytes)
	assert.Equal(t, key4(15), node.KeyAt(1))
	assert.Equal(t, PageID(20), node.ChildAt(2))

	// InsertFront 把条目顶到哨兵位
	node.InsertFront(key4(1), 1)
	assert.Equal(t, PageID(1), node.ChildAt(0))
	assert.Equal(t, PageID(10), node.ChildAt(1))
	assert.Equal(t, 6, node.GetSize())
}

func TestInternalPageRemoveAt(t *testing.T) {
	node := buildInternal(t)

	node.RemoveAt(1)
	assert.Equal(t, 2, node.GetSize())
	assert.Equal(t, PageID(10), node.ChildAt(0))
	assert.Equal(t, key4(30), node.KeyAt(1))
	assert.Equal(t, PageID(30), node.ChildAt(1))
}

func TestInternalPageCopyHalfAndShift(t *testing.T) {
	node := NewInternalPage(&Page{}, 4)
	node.Init(InvalidPageID, 8)
	node.SetChildAt(0, 100)
	for i := 1; i <= 5; i++ {
		node.SetEntryAt(i, key4(uint32(i*10)), PageID(100+i))
	}
	node.SetSize(6)

	// 上半段搬到新页
	sibling := NewInternalPage(&Page{}, 4)
	sibling.Init(InvalidPageID, 8)
	sibling.CopyHalfFrom(node, 3, 6)
	sibling.SetSize(3)
	node.SetSize(3)

	assert.Equal(t, PageID(103), sibling.ChildAt(0))
	assert.Equal(t, key4(40), sibling.KeyAt(1))
	assert.Equal(t, key4(50), sibling.KeyAt(2))

	// 右移一格：孩子 0 空出来给借位
	sibling.ShiftData(1)
	sibling.SetChildAt(0, 99)
	sibling.SetKeyAt(1, key4(30))
	assert.Equal(t, 4, sibling.GetSize())
	assert.Equal(t, PageID(99), sibling.ChildAt(0))
	assert.Equal(t, key4(30), sibling.KeyAt(1))
	assert.Equal(t, PageID(103), sibling.ChildAt(1))

	// 左移回去
	sibling.ShiftData(-1)
	assert.Equal(t, 3, sibling.GetSize())
	assert.Equal(t, PageID(103), sibling.ChildAt(0))
}

func TestBTreePageMinSize(t *testing.T) {
	leaf := NewLeafPage(&Page{}, 4)
	leaf.Init(InvalidPageID, 5)
	// 叶子取下整
	assert.Equal(t, 2, leaf.MinSize())

	node := NewInternalPage(&Page{}, 4)
	node.Init(InvalidPageID, 5)
	// 内部页取上整
	assert.Equal(t, 3, node.MinSize())
}
