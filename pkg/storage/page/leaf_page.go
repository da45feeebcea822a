package page

import "encoding/binary"

// LeafPage 是叶子节点的视图
// 头部比内部页多一个 nextPageID，叶子之间按键序串成单链表
// 条目是 (key, RID)，按键严格递增
type LeafPage struct {
	BTreePage
}

func NewLeafPage(p *Page, keySize int) *LeafPage {
	return &LeafPage{BTreePage{Data: p.Data[:], KeySize: keySize}}
}

func (p *LeafPage) Init(parentID PageID, maxSize int) {
	p.SetPageType(KindLeaf)
	p.SetSize(0)
	p.SetMaxSize(maxSize)
	p.SetParentPageID(parentID)
	p.SetNextPageID(InvalidPageID)
}

func (p *LeafPage) GetNextPageID() PageID {
	return PageID(int32(binary.LittleEndian.Uint32(p.Data[OffsetNextPageID:])))
}

func (p *LeafPage) SetNextPageID(id PageID) {
	binary.LittleEndian.PutUint32(p.Data[OffsetNextPageID:], uint32(id))
}

func (p *LeafPage) entrySize() int {
	return p.KeySize + SizeOfRID
}

func (p *LeafPage) entryOffset(index int) int {
	return LeafHeaderSize + index*p.entrySize()
}

// KeyAt 返回指定下标的键（拷贝）
func (p *LeafPage) KeyAt(index int) []byte {
	offset := p.entryOffset(index)
	key := make([]byte, p.KeySize)
	copy(key, p.Data[offset:offset+p.KeySize])
	return key
}

func (p *LeafPage) RIDAt(index int) RID {
	offset := p.entryOffset(index) + p.KeySize
	return RIDFromBytes(p.Data[offset : offset+SizeOfRID])
}

func (p *LeafPage) SetEntryAt(index int, key []byte, rid RID) {
	offset := p.entryOffset(index)
	copy(p.Data[offset:offset+p.KeySize], key)
	copy(p.Data[offset+p.KeySize:offset+p.KeySize+SizeOfRID], rid.Bytes())
}

// Lookup 二分查找键，命中返回 (rid, index, true)
func (p *LeafPage) Lookup(key []byte, cmp Comparator) (RID, int, bool) {
	lo, hi := 0, p.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		offset := p.entryOffset(mid)
		if cmp(p.Data[offset:offset+p.KeySize], key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < p.GetSize() {
		offset := p.entryOffset(lo)
		if cmp(p.Data[offset:offset+p.KeySize], key) == 0 {
			return p.RIDAt(lo), lo, true
		}
	}
	return RID{}, -1, false
}

// Insert 按序插入 (key, rid)，键已存在返回 false
func (p *LeafPage) Insert(key []byte, rid RID, cmp Comparator) bool {
	count := p.GetSize()
	index := count
	for i := 0; i < count; i++ {
		offset := p.entryOffset(i)
		c := cmp(p.Data[offset:offset+p.KeySize], key)
		if c == 0 {
			return false
		}
		if c > 0 {
			index = i
			break
		}
	}

	es := p.entrySize()
	start := p.entryOffset(index)
	end := p.entryOffset(count)
	copy(p.Data[start+es:], p.Data[start:end])

	p.SetEntryAt(index, key, rid)
	p.SetSize(count + 1)
	return true
}

// Delete 删除 (key, rid) 对，没找到返回 false
func (p *LeafPage) Delete(key []byte, rid RID, cmp Comparator) bool {
	found, index, ok := p.Lookup(key, cmp)
	if !ok || found != rid {
		return false
	}

	count := p.GetSize()
	es := p.entrySize()
	start := p.entryOffset(index)
	end := p.entryOffset(count)
	copy(p.Data[start:], p.Data[start+es:end])
	p.SetSize(count - 1)
	return true
}

// CopyHalfFrom 把 src 的 [from, to) 条目拷贝到本页开头（分裂时用）
func (p *LeafPage) CopyHalfFrom(src *LeafPage, from, to int) {
	srcStart := src.entryOffset(from)
	srcEnd := src.entryOffset(to)
	copy(p.Data[LeafHeaderSize:], src.Data[srcStart:srcEnd])
}

// Merge 把 src 的全部条目追加到本页末尾（合并时用）
func (p *LeafPage) Merge(src *LeafPage) {
	count := p.GetSize()
	srcCount := src.GetSize()
	srcStart := src.entryOffset(0)
	srcEnd := src.entryOffset(srcCount)
	copy(p.Data[p.entryOffset(count):], src.Data[srcStart:srcEnd])
	p.SetSize(count + srcCount)
	src.SetSize(0)
}

// ShiftData 条目整体移动 dist 个位置并相应调整大小（借位时用）
func (p *LeafPage) ShiftData(dist int) {
	count := p.GetSize()
	es := p.entrySize()
	if dist > 0 {
		start := LeafHeaderSize
		end := p.entryOffset(count)
		copy(p.Data[start+dist*es:], p.Data[start:end])
	} else if dist < 0 {
		start := p.entryOffset(-dist)
		end := p.entryOffset(count)
		copy(p.Data[LeafHeaderSize:], p.Data[start:end])
	}
	p.IncreaseSize(dist)
}
