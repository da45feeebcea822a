package page

import (
	"encoding/binary"
)

// B+ 树页面的公共头部布局（小端，位稳定，直接落盘）:
//   [pageType:4][size:4][maxSize:4][parentPageID:4]
// 叶子页在公共头部后面多一个 [nextPageID:4]
const (
	SizeOfPageID = 4
	SizeOfInt32  = 4

	OffsetPageType   = 0
	OffsetSize       = 4
	OffsetMaxSize    = 8
	OffsetParentID   = 12
	BTreeHeaderSize  = 16
	OffsetNextPageID = 16

	LeafHeaderSize = 20
)

const (
	KindInvalid  = 0
	KindInternal = 1
	KindLeaf     = 2
)

// BTreePage 是对一个原始 Page 字节的类型化视图
// 它不拥有数据，只是解释 Buffer Pool 借出来的那 4KB
type BTreePage struct {
	Data    []byte
	KeySize int
}

func NewBTreePage(p *Page, keySize int) *BTreePage {
	return &BTreePage{Data: p.Data[:], KeySize: keySize}
}

func (p *BTreePage) GetPageType() uint32 {
	return binary.LittleEndian.Uint32(p.Data[OffsetPageType:])
}

func (p *BTreePage) SetPageType(kind uint32) {
	binary.LittleEndian.PutUint32(p.Data[OffsetPageType:], kind)
}

func (p *BTreePage) GetSize() int {
	return int(int32(binary.LittleEndian.Uint32(p.Data[OffsetSize:])))
}

func (p *BTreePage) SetSize(size int) {
	binary.LittleEndian.PutUint32(p.Data[OffsetSize:], uint32(size))
}

func (p *BTreePage) IncreaseSize(delta int) {
	p.SetSize(p.GetSize() + delta)
}

func (p *BTreePage) GetMaxSize() int {
	return int(int32(binary.LittleEndian.Uint32(p.Data[OffsetMaxSize:])))
}

func (p *BTreePage) SetMaxSize(size int) {
	binary.LittleEndian.PutUint32(p.Data[OffsetMaxSize:], uint32(size))
}

func (p *BTreePage) GetParentPageID() PageID {
	return PageID(int32(binary.LittleEndian.Uint32(p.Data[OffsetParentID:])))
}

func (p *BTreePage) SetParentPageID(id PageID) {
	binary.LittleEndian.PutUint32(p.Data[OffsetParentID:], uint32(id))
}

func (p *BTreePage) IsLeaf() bool {
	return p.GetPageType() == KindLeaf
}

// MinSize 是节点不算下溢的最小条目数
// 内部页取上整 (保证子树扇出至少一半)，叶子页取下整
func (p *BTreePage) MinSize() int {
	if p.IsLeaf() {
		return p.GetMaxSize() / 2
	}
	return (p.GetMaxSize() + 1) / 2
}
