package page

import (
	"bytes"
	"encoding/binary"
)

// 索引的键是定长字节数组，长度由建树时的配置决定 (4/8/16/32/64)
// 所有排序（插入位置、查找目标、分裂分隔键）都走同一个比较器

// Comparator 定义键上的全序：a<b 返回负数，a==b 返回 0，a>b 返回正数
type Comparator func(a, b []byte) int

// CompareBytes 是默认比较器，按字节序比较
// 整数键用大端编码后即可保持数值序
func CompareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}

// 合法的键长度
var KeySizes = []int{4, 8, 16, 32, 64}

func ValidKeySize(size int) bool {
	for _, s := range KeySizes {
		if s == size {
			return true
		}
	}
	return false
}

// RID 是叶子页中存放的记录标识符：指向堆文件里的某一行
// 在页内占 8 字节: [pageID:4][slotNum:4]
const SizeOfRID = 8

type RID struct {
	PageID  PageID
	SlotNum uint32
}

func (r RID) Bytes() []byte {
	buf := make([]byte, SizeOfRID)
	binary.LittleEndian.PutUint32(buf[0:], uint32(r.PageID))
	binary.LittleEndian.PutUint32(buf[4:], r.SlotNum)
	return buf
}

func RIDFromBytes(buf []byte) RID {
	return RID{
		PageID:  PageID(int32(binary.LittleEndian.Uint32(buf[0:]))),
		SlotNum: binary.LittleEndian.Uint32(buf[4:]),
	}
}
