package page

import "encoding/binary"

// HeaderPage 只存树的根页面 ID，其余字节不用
// 布局: [rootPageID:4]
type HeaderPage struct {
	Data []byte
}

func NewHeaderPage(p *Page) *HeaderPage {
	return &HeaderPage{Data: p.Data[:]}
}

func (h *HeaderPage) Init() {
	h.SetRootPageID(InvalidPageID)
}

func (h *HeaderPage) GetRootPageID() PageID {
	return PageID(int32(binary.LittleEndian.Uint32(h.Data[0:])))
}

func (h *HeaderPage) SetRootPageID(id PageID) {
	binary.LittleEndian.PutUint32(h.Data[0:], uint32(id))
}
