package page

import "encoding/binary"

// InternalPage 是内部（路由）节点的视图
// 公共头部后面是 size 个 (key, childPageID) 条目
// 约定：index 0 的 key 是不使用的哨兵位；对 i >= 1，key[i] 是分隔键，
// child[i-1] 子树的所有键 < key[i]，child[i] 子树的所有键 >= key[i]
type InternalPage struct {
	BTreePage
}

func NewInternalPage(p *Page, keySize int) *InternalPage {
	return &InternalPage{BTreePage{Data: p.Data[:], KeySize: keySize}}
}

func (p *InternalPage) Init(parentID PageID, maxSize int) {
	p.SetPageType(KindInternal)
	p.SetSize(0)
	p.SetMaxSize(maxSize)
	p.SetParentPageID(parentID)
}

func (p *InternalPage) entrySize() int {
	return p.KeySize + SizeOfPageID
}

func (p *InternalPage) entryOffset(index int) int {
	return BTreeHeaderSize + index*p.entrySize()
}

// KeyAt 返回指定下标的键（拷贝，防止后续移动条目时被改写）
func (p *InternalPage) KeyAt(index int) []byte {
	offset := p.entryOffset(index)
	key := make([]byte, p.KeySize)
	copy(key, p.Data[offset:offset+p.KeySize])
	return key
}

func (p *InternalPage) SetKeyAt(index int, key []byte) {
	offset := p.entryOffset(index)
	copy(p.Data[offset:offset+p.KeySize], key)
}

func (p *InternalPage) ChildAt(index int) PageID {
	offset := p.entryOffset(index) + p.KeySize
	return PageID(int32(binary.LittleEndian.Uint32(p.Data[offset:])))
}

func (p *InternalPage) SetChildAt(index int, id PageID) {
	offset := p.entryOffset(index) + p.KeySize
	binary.LittleEndian.PutUint32(p.Data[offset:], uint32(id))
}

func (p *InternalPage) SetEntryAt(index int, key []byte, id PageID) {
	p.SetKeyAt(index, key)
	p.SetChildAt(index, id)
}

// FindChild 查找 key 应该落入的孩子指针
// 返回满足 key[i] <= key 的最大 i 处的孩子；都不满足则走第 0 个孩子
func (p *InternalPage) FindChild(key []byte, cmp Comparator) (PageID, int) {
	count := p.GetSize()
	for i := count - 1; i >= 1; i-- {
		offset := p.entryOffset(i)
		if cmp(p.Data[offset:offset+p.KeySize], key) <= 0 {
			return p.ChildAt(i), i
		}
	}
	return p.ChildAt(0), 0
}

// Insert 把 (key, child) 按序插入到 [1, size) 区间
// 分隔键在父页中不会重复，这里不做去重
func (p *InternalPage) Insert(key []byte, child PageID, cmp Comparator) {
	count := p.GetSize()
	index := count
	for i := 1; i < count; i++ {
		offset := p.entryOffset(i)
		if cmp(p.Data[offset:offset+p.KeySize], key) > 0 {
			index = i
			break
		}
	}

	p.shiftRightFrom(index)
	p.SetEntryAt(index, key, child)
	p.SetSize(count + 1)
}

// InsertFront 把 (key, child) 放到条目 0，其余整体右移
// 只在内部页分裂、新键本身要被推上去的那种情况使用：
// 此时 key 落在哨兵位上，之后不会再被读到
func (p *InternalPage) InsertFront(key []byte, child PageID) {
	p.shiftRightFrom(0)
	p.SetEntryAt(0, key, child)
	p.IncreaseSize(1)
}

func (p *InternalPage) Append(key []byte, child PageID) {
	index := p.GetSize()
	p.SetEntryAt(index, key, child)
	p.SetSize(index + 1)
}

// RemoveAt 删除指定下标的条目，后面的整体前移
func (p *InternalPage) RemoveAt(index int) {
	count := p.GetSize()
	if index < 0 || index >= count {
		return
	}
	es := p.entrySize()
	start := p.entryOffset(index)
	end := p.entryOffset(count)
	copy(p.Data[start:], p.Data[start+es:end])
	p.SetSize(count - 1)
}

// CopyHalfFrom 把 src 的 [from, to) 条目拷贝到本页开头（分裂时用）
// 大小由调用方负责更新
func (p *InternalPage) CopyHalfFrom(src *InternalPage, from, to int) {
	srcStart := src.entryOffset(from)
	srcEnd := src.entryOffset(to)
	copy(p.Data[BTreeHeaderSize:], src.Data[srcStart:srcEnd])
}

// ShiftData 条目整体移动 dist 个位置并相应调整大小
// dist > 0 右移（前面空出 dist 个位置），dist < 0 左移（丢掉前 -dist 个条目）
func (p *InternalPage) ShiftData(dist int) {
	count := p.GetSize()
	es := p.entrySize()
	if dist > 0 {
		start := BTreeHeaderSize
		end := p.entryOffset(count)
		copy(p.Data[start+dist*es:], p.Data[start:end])
	} else if dist < 0 {
		start := p.entryOffset(-dist)
		end := p.entryOffset(count)
		copy(p.Data[BTreeHeaderSize:], p.Data[start:end])
	}
	p.IncreaseSize(dist)
}

func (p *InternalPage) shiftRightFrom(index int) {
	count := p.GetSize()
	es := p.entrySize()
	start := p.entryOffset(index)
	end := p.entryOffset(count)
	copy(p.Data[start+es:], p.Data[start:end])
}
