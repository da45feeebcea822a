package index

import (
	"pinedb/pkg/buffer"
	"pinedb/pkg/storage/page"
)

// opContext 是一次写操作（插入/删除）的上下文
// 沿根到叶的下降路径压一摞写守卫，外加头页面的写守卫
// 页内的 parentPageID 字段这里从来不信，找父亲、找兄弟全靠这摞守卫和下降时记的孩子下标
type opContext struct {
	headerGuard *buffer.WritePageGuard
	header      *page.HeaderPage
	rootPageID  page.PageID

	writeSet      []*buffer.WritePageGuard
	indexInParent map[page.PageID]int // 下降时记录: 孩子页 ID -> 它在父页中的下标
}

func newOpContext() *opContext {
	return &opContext{
		indexInParent: make(map[page.PageID]int),
	}
}

func (c *opContext) push(g *buffer.WritePageGuard) {
	c.writeSet = append(c.writeSet, g)
}

func (c *opContext) pop() *buffer.WritePageGuard {
	n := len(c.writeSet)
	g := c.writeSet[n-1]
	c.writeSet = c.writeSet[:n-1]
	return g
}

func (c *opContext) top() *buffer.WritePageGuard {
	return c.writeSet[len(c.writeSet)-1]
}

func (c *opContext) isRoot(id page.PageID) bool {
	return id == c.rootPageID
}

// release 把还没释放的守卫按后进先出放掉，最后放头页面
// Drop 可以重复调用，所以 defer 它总是安全的
func (c *opContext) release() {
	for i := len(c.writeSet) - 1; i >= 0; i-- {
		c.writeSet[i].Drop()
	}
	c.writeSet = nil
	if c.headerGuard != nil {
		c.headerGuard.Drop()
	}
}
