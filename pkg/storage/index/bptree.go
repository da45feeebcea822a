package index

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pinedb/pkg/buffer"
	"pinedb/pkg/storage/page"
)

// Config 是建树参数
// LeafMaxSize / InternalMaxSize 按条目数计；KeySize 必须是 4/8/16/32/64 之一
type Config struct {
	LeafMaxSize     int
	InternalMaxSize int
	KeySize         int
}

// BPlusTree 是建在缓冲池上的 B+ 树索引
// 所有页面都通过守卫向缓冲池借；写路径从根到叶一路加写守卫，
// 结构调整（分裂/合并/借位）在这串独占锁的保护下进行
//
// pin 预算：一次操作最多同时持有 深度+2 个守卫（头页 + 下降路径 + 兄弟页），
// 池子至少要有这么多帧，否则会返回 ErrPoolExhausted
type BPlusTree struct {
	bpm          *buffer.BufferPoolManager
	headerPageID page.PageID
	cmp          page.Comparator

	leafMaxSize     int
	internalMaxSize int
	keySize         int

	log *zap.Logger
}

// NewBPlusTree 创建或重新打开一棵树
// headerPageID 传 InvalidPageID 表示建新树（自己分配头页面）；
// 传已有的头页面 ID 表示打开磁盘上已经存在的树
func NewBPlusTree(bpm *buffer.BufferPoolManager, headerPageID page.PageID, cmp page.Comparator, cfg Config, logger *zap.Logger) (*BPlusTree, error) {
	if !page.ValidKeySize(cfg.KeySize) {
		return nil, errors.Errorf("invalid key size %d", cfg.KeySize)
	}
	if cfg.LeafMaxSize < 3 || cfg.InternalMaxSize < 3 {
		return nil, errors.Errorf("max size too small: leaf %d, internal %d", cfg.LeafMaxSize, cfg.InternalMaxSize)
	}
	if page.LeafHeaderSize+cfg.LeafMaxSize*(cfg.KeySize+page.SizeOfRID) > page.Size {
		return nil, errors.Errorf("leaf max size %d does not fit in a page", cfg.LeafMaxSize)
	}
	if page.BTreeHeaderSize+cfg.InternalMaxSize*(cfg.KeySize+page.SizeOfPageID) > page.Size {
		return nil, errors.Errorf("internal max size %d does not fit in a page", cfg.InternalMaxSize)
	}
	if cmp == nil {
		cmp = page.CompareBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tree := &BPlusTree{
		bpm:             bpm,
		headerPageID:    headerPageID,
		cmp:             cmp,
		leafMaxSize:     cfg.LeafMaxSize,
		internalMaxSize: cfg.InternalMaxSize,
		keySize:         cfg.KeySize,
		log:             logger,
	}

	if headerPageID == page.InvalidPageID {
		guard, err := bpm.NewPageGuarded()
		if err != nil {
			return nil, err
		}
		header := page.NewHeaderPage(guard.Page())
		header.Init()
		guard.SetDirty()
		tree.headerPageID = guard.PageID()
		guard.Drop()
	}

	return tree, nil
}

// HeaderPageID 返回头页面 ID，重开树的时候要把它存好
func (t *BPlusTree) HeaderPageID() page.PageID {
	return t.headerPageID
}

// RootPageID 返回当前根页面 ID（空树返回 InvalidPageID）
func (t *BPlusTree) RootPageID() (page.PageID, error) {
	guard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return page.InvalidPageID, err
	}
	defer guard.Drop()
	return page.NewHeaderPage(guard.Page()).GetRootPageID(), nil
}

func (t *BPlusTree) IsEmpty() (bool, error) {
	root, err := t.RootPageID()
	if err != nil {
		return false, err
	}
	return root == page.InvalidPageID, nil
}

// GetValue 点查
// 读路径：先拿孩子的读守卫再放父亲的（保证可见性），逐层下降到叶子后二分
func (t *BPlusTree) GetValue(key []byte) (page.RID, bool, error) {
	if len(key) != t.keySize {
		return page.RID{}, false, errors.Errorf("key size %d, want %d", len(key), t.keySize)
	}

	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return page.RID{}, false, err
	}
	rootID := page.NewHeaderPage(headerGuard.Page()).GetRootPageID()
	if rootID == page.InvalidPageID {
		headerGuard.Drop()
		return page.RID{}, false, nil
	}

	guard, err := t.bpm.FetchPageRead(rootID)
	headerGuard.Drop()
	if err != nil {
		return page.RID{}, false, err
	}

	node := page.NewBTreePage(guard.Page(), t.keySize)
	for !node.IsLeaf() {
		internal := page.NewInternalPage(guard.Page(), t.keySize)
		childID, _ := internal.FindChild(key, t.cmp)

		child, err := t.bpm.FetchPageRead(childID)
		if err != nil {
			guard.Drop()
			return page.RID{}, false, err
		}
		guard.Drop()
		guard = child
		node = page.NewBTreePage(guard.Page(), t.keySize)
	}

	leaf := page.NewLeafPage(guard.Page(), t.keySize)
	rid, _, found := leaf.Lookup(key, t.cmp)
	guard.Drop()
	return rid, found, nil
}

// Insert 插入 (key, rid)；键已存在返回 false，不会留下任何修改
func (t *BPlusTree) Insert(key []byte, rid page.RID) (bool, error) {
	if len(key) != t.keySize {
		return false, errors.Errorf("key size %d, want %d", len(key), t.keySize)
	}

	ctx := newOpContext()
	defer ctx.release()

	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	ctx.headerGuard = headerGuard
	ctx.header = page.NewHeaderPage(headerGuard.Page())
	ctx.rootPageID = ctx.header.GetRootPageID()

	// 空树：建一个叶子当根
	if ctx.rootPageID == page.InvalidPageID {
		return t.startNewTree(ctx, key, rid)
	}

	// 从根一路写守卫下降到叶子，路径压进上下文
	guard, err := t.bpm.FetchPageWrite(ctx.rootPageID)
	if err != nil {
		return false, err
	}
	node := page.NewBTreePage(guard.Page(), t.keySize)
	for !node.IsLeaf() {
		internal := page.NewInternalPage(guard.Page(), t.keySize)
		childID, _ := internal.FindChild(key, t.cmp)
		ctx.push(guard)

		guard, err = t.bpm.FetchPageWrite(childID)
		if err != nil {
			return false, err
		}
		node = page.NewBTreePage(guard.Page(), t.keySize)
	}

	leaf := page.NewLeafPage(guard.Page(), t.keySize)

	// 还有空位，直接插
	if leaf.GetSize() < leaf.GetMaxSize()-1 {
		ok := leaf.Insert(key, rid, t.cmp)
		guard.Drop()
		return ok, nil
	}

	// 这次插入会把叶子写满，插完立刻分裂
	if !leaf.Insert(key, rid, t.cmp) {
		guard.Drop()
		return false, nil
	}

	newGuard, err := t.newPageWrite()
	if err != nil {
		// 分不出新页就回退这次插入，叶子不能留在超员状态
		leaf.Delete(key, rid, t.cmp)
		guard.Drop()
		return false, err
	}

	newLeaf := page.NewLeafPage(newGuard.Page(), t.keySize)
	newLeaf.Init(leaf.GetParentPageID(), t.leafMaxSize)

	minSize := leaf.MinSize()
	curSize := leaf.GetSize()
	newLeaf.CopyHalfFrom(leaf, minSize, curSize)
	newLeaf.SetSize(curSize - minSize)
	leaf.SetSize(minSize)

	newLeaf.SetNextPageID(leaf.GetNextPageID())
	leaf.SetNextPageID(newGuard.PageID())

	pushed := newLeaf.KeyAt(0)
	t.log.Debug("leaf split",
		zap.Int32("left", int32(guard.PageID())),
		zap.Int32("right", int32(newGuard.PageID())))

	ctx.push(guard)
	return true, t.insertInParent(ctx, pushed, newGuard)
}

// startNewTree 建根叶子并写入第一个条目
func (t *BPlusTree) startNewTree(ctx *opContext, key []byte, rid page.RID) (bool, error) {
	guard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return false, err
	}

	leaf := page.NewLeafPage(guard.Page(), t.keySize)
	leaf.Init(page.InvalidPageID, t.leafMaxSize)
	leaf.Insert(key, rid, t.cmp)
	guard.SetDirty()

	ctx.header.SetRootPageID(guard.PageID())
	ctx.rootPageID = guard.PageID()
	guard.Drop()
	return true, nil
}

// newPageWrite 分配一个新页并拿到它的写守卫
// 新页还没人知道它的 ID，这里先放掉基础守卫再补写锁不会有竞态
func (t *BPlusTree) newPageWrite() (*buffer.WritePageGuard, error) {
	guard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return nil, err
	}
	id := guard.PageID()
	guard.Drop()
	return t.bpm.FetchPageWrite(id)
}

// insertInParent 把分裂产生的 (key, 右页) 挂到父页上
// 上下文栈顶是分裂出的左页；父页满了就按三种情况继续分裂、递归向上
func (t *BPlusTree) insertInParent(ctx *opContext, key []byte, rightGuard *buffer.WritePageGuard) error {
	leftGuard := ctx.top()

	// 左页就是根：造一个新的内部页当根
	if ctx.isRoot(leftGuard.PageID()) {
		newRootGuard, err := t.newPageWrite()
		if err != nil {
			rightGuard.Drop()
			return err
		}

		newRoot := page.NewInternalPage(newRootGuard.Page(), t.keySize)
		newRoot.Init(page.InvalidPageID, t.internalMaxSize)
		newRoot.SetChildAt(0, leftGuard.PageID())
		newRoot.SetEntryAt(1, key, rightGuard.PageID())
		newRoot.SetSize(2)

		page.NewBTreePage(leftGuard.Page(), t.keySize).SetParentPageID(newRootGuard.PageID())
		page.NewBTreePage(rightGuard.Page(), t.keySize).SetParentPageID(newRootGuard.PageID())

		ctx.header.SetRootPageID(newRootGuard.PageID())
		ctx.rootPageID = newRootGuard.PageID()
		t.log.Debug("new root", zap.Int32("root", int32(newRootGuard.PageID())))

		ctx.pop().Drop()
		rightGuard.Drop()
		newRootGuard.Drop()
		return nil
	}

	// 左页处理完了，弹出去找父页
	ctx.pop().Drop()
	parentGuard := ctx.top()
	parent := page.NewInternalPage(parentGuard.Page(), t.keySize)

	// 父页没满，插进去收工
	if parent.GetSize() < parent.GetMaxSize() {
		parent.Insert(key, rightGuard.PageID(), t.cmp)
		page.NewBTreePage(rightGuard.Page(), t.keySize).SetParentPageID(parentGuard.PageID())
		rightGuard.Drop()
		ctx.pop().Drop()
		return nil
	}

	// 父页满了，分裂后再递归向上
	newGuard, err := t.newPageWrite()
	if err != nil {
		rightGuard.Drop()
		return err
	}
	newInternal := page.NewInternalPage(newGuard.Page(), t.keySize)
	newInternal.Init(parent.GetParentPageID(), t.internalMaxSize)

	m := parent.MinSize()
	n := parent.GetSize()
	pushed := parent.KeyAt(m)
	last := parent.KeyAt(m - 1)
	rightID := rightGuard.PageID()

	// 三种情况，保证两半各自不少于 minSize：
	switch {
	case t.cmp(key, pushed) > 0:
		// 新键落在新页，推上去的还是原来的 pushed
		newInternal.CopyHalfFrom(parent, m, n)
		parent.SetSize(m)
		newInternal.SetSize(n - m)
		newInternal.Insert(key, rightID, t.cmp)
		page.NewBTreePage(rightGuard.Page(), t.keySize).SetParentPageID(newGuard.PageID())
	case t.cmp(key, last) > 0:
		// last < key < pushed：新键自己被推上去，右孩子顶在新页最前面
		newInternal.CopyHalfFrom(parent, m, n)
		parent.SetSize(m)
		newInternal.SetSize(n - m)
		newInternal.InsertFront(key, rightID)
		page.NewBTreePage(rightGuard.Page(), t.keySize).SetParentPageID(newGuard.PageID())
		pushed = append([]byte(nil), key...)
	default:
		// 新键落在左页，左页少留一个，推上去 last
		newInternal.CopyHalfFrom(parent, m-1, n)
		parent.SetSize(m - 1)
		newInternal.SetSize(n - m + 1)
		parent.Insert(key, rightID, t.cmp)
		page.NewBTreePage(rightGuard.Page(), t.keySize).SetParentPageID(parentGuard.PageID())
		pushed = last
	}
	rightGuard.Drop()

	// 搬到新页的孩子都要改父指针
	if err := t.adoptChildren(newInternal, 0, newGuard.PageID()); err != nil {
		newGuard.Drop()
		return err
	}

	t.log.Debug("internal split",
		zap.Int32("left", int32(parentGuard.PageID())),
		zap.Int32("right", int32(newGuard.PageID())))

	return t.insertInParent(ctx, pushed, newGuard)
}

// Remove 删除键；键不存在是空操作
func (t *BPlusTree) Remove(key []byte) error {
	if len(key) != t.keySize {
		return errors.Errorf("key size %d, want %d", len(key), t.keySize)
	}

	ctx := newOpContext()
	defer ctx.release()

	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return err
	}
	ctx.headerGuard = headerGuard
	ctx.header = page.NewHeaderPage(headerGuard.Page())
	ctx.rootPageID = ctx.header.GetRootPageID()

	if ctx.rootPageID == page.InvalidPageID {
		return nil
	}

	// 下降时顺手记下每个孩子在父页里的下标，之后找兄弟要用
	guard, err := t.bpm.FetchPageWrite(ctx.rootPageID)
	if err != nil {
		return err
	}
	node := page.NewBTreePage(guard.Page(), t.keySize)
	for !node.IsLeaf() {
		internal := page.NewInternalPage(guard.Page(), t.keySize)
		childID, childIdx := internal.FindChild(key, t.cmp)
		ctx.indexInParent[childID] = childIdx
		ctx.push(guard)

		guard, err = t.bpm.FetchPageWrite(childID)
		if err != nil {
			return err
		}
		node = page.NewBTreePage(guard.Page(), t.keySize)
	}

	leaf := page.NewLeafPage(guard.Page(), t.keySize)
	rid, _, found := leaf.Lookup(key, t.cmp)
	if !found {
		guard.Drop()
		return nil
	}

	ctx.push(guard)
	return t.deleteLeafEntry(ctx, key, rid)
}

// deleteLeafEntry 从叶子删除条目并处理下溢
func (t *BPlusTree) deleteLeafEntry(ctx *opContext, key []byte, rid page.RID) error {
	guard := ctx.pop()
	leaf := page.NewLeafPage(guard.Page(), t.keySize)
	pageID := guard.PageID()

	if !leaf.Delete(key, rid, t.cmp) {
		guard.Drop()
		return nil
	}

	// 根叶子特殊处理：删空了整棵树就空了
	if ctx.isRoot(pageID) {
		if leaf.GetSize() == 0 {
			ctx.header.SetRootPageID(page.InvalidPageID)
			ctx.rootPageID = page.InvalidPageID
			guard.Drop()
			t.bpm.DeletePage(pageID)
			return nil
		}
		guard.Drop()
		return nil
	}

	// 没下溢就完事
	if leaf.GetSize() >= leaf.MinSize() {
		guard.Drop()
		return nil
	}

	// 下溢：找兄弟，合并或者借位
	parentGuard := ctx.top()
	parent := page.NewInternalPage(parentGuard.Page(), t.keySize)
	idx := ctx.indexInParent[pageID]
	isLast := idx == parent.GetSize()-1

	var siblingID page.PageID
	if isLast {
		siblingID = parent.ChildAt(idx - 1) // 最右边的孩子只能找左兄弟
	} else {
		siblingID = parent.ChildAt(idx + 1)
	}

	siblingGuard, err := t.bpm.FetchPageWrite(siblingID)
	if err != nil {
		guard.Drop()
		return err
	}
	sibling := page.NewLeafPage(siblingGuard.Page(), t.keySize)

	// 统一成 左页 + 右页 + 中间的分隔键
	var left, right *page.LeafPage
	var leftGuard, rightGuard *buffer.WritePageGuard
	var sepIdx int
	if isLast {
		left, right = sibling, leaf
		leftGuard, rightGuard = siblingGuard, guard
		sepIdx = idx
	} else {
		left, right = leaf, sibling
		leftGuard, rightGuard = guard, siblingGuard
		sepIdx = idx + 1
	}
	upKey := parent.KeyAt(sepIdx)

	// 两页装得下一页就合并，否则借位
	if left.GetSize()+right.GetSize() < left.GetMaxSize() {
		left.Merge(right)
		left.SetNextPageID(right.GetNextPageID())

		rightID := rightGuard.PageID()
		t.log.Debug("leaf merge",
			zap.Int32("left", int32(leftGuard.PageID())),
			zap.Int32("right", int32(rightID)))

		leftGuard.Drop()
		rightGuard.Drop()
		t.bpm.DeletePage(rightID)

		// 从父页删掉指向右页的条目，递归处理父页下溢
		return t.deleteInternalEntry(ctx, upKey, rightID)
	}

	if isLast {
		// 左兄弟最后一个挪到右页开头
		ls := left.GetSize()
		borrowKey := left.KeyAt(ls - 1)
		borrowRID := left.RIDAt(ls - 1)
		right.ShiftData(1)
		right.SetEntryAt(0, borrowKey, borrowRID)
		left.IncreaseSize(-1)
		parent.SetKeyAt(sepIdx, borrowKey)
	} else {
		// 右兄弟第一个挪到左页末尾
		borrowKey := right.KeyAt(0)
		borrowRID := right.RIDAt(0)
		left.SetEntryAt(left.GetSize(), borrowKey, borrowRID)
		left.IncreaseSize(1)
		right.ShiftData(-1)
		parent.SetKeyAt(sepIdx, right.KeyAt(0))
	}

	leftGuard.Drop()
	rightGuard.Drop()
	return nil
}

// deleteInternalEntry 从内部页删除指向 childID 的条目并处理下溢
// 和叶子同一套合并/借位逻辑，区别在分隔键要在父子之间上下搬
func (t *BPlusTree) deleteInternalEntry(ctx *opContext, key []byte, childID page.PageID) error {
	guard := ctx.pop()
	node := page.NewInternalPage(guard.Page(), t.keySize)
	pageID := guard.PageID()

	removeIdx := -1
	for i := 0; i < node.GetSize(); i++ {
		if node.ChildAt(i) == childID {
			removeIdx = i
			break
		}
	}
	if removeIdx < 0 {
		guard.Drop()
		return errors.Errorf("internal page %d has no child %d", pageID, childID)
	}
	node.RemoveAt(removeIdx)

	if ctx.isRoot(pageID) {
		// 根只剩一个孩子时，孩子升为新根（树高减一）
		if node.GetSize() == 1 {
			newRootID := node.ChildAt(0)
			if err := t.adoptChild(newRootID, page.InvalidPageID); err != nil {
				guard.Drop()
				return err
			}
			ctx.header.SetRootPageID(newRootID)
			ctx.rootPageID = newRootID
			t.log.Debug("root collapsed", zap.Int32("root", int32(newRootID)))

			guard.Drop()
			t.bpm.DeletePage(pageID)
			return nil
		}
		guard.Drop()
		return nil
	}

	if node.GetSize() >= node.MinSize() {
		guard.Drop()
		return nil
	}

	parentGuard := ctx.top()
	parent := page.NewInternalPage(parentGuard.Page(), t.keySize)
	idx := ctx.indexInParent[pageID]
	isLast := idx == parent.GetSize()-1

	var siblingID page.PageID
	if isLast {
		siblingID = parent.ChildAt(idx - 1)
	} else {
		siblingID = parent.ChildAt(idx + 1)
	}

	siblingGuard, err := t.bpm.FetchPageWrite(siblingID)
	if err != nil {
		guard.Drop()
		return err
	}
	sibling := page.NewInternalPage(siblingGuard.Page(), t.keySize)

	var left, right *page.InternalPage
	var leftGuard, rightGuard *buffer.WritePageGuard
	var sepIdx int
	if isLast {
		left, right = sibling, node
		leftGuard, rightGuard = siblingGuard, guard
		sepIdx = idx
	} else {
		left, right = node, sibling
		leftGuard, rightGuard = guard, siblingGuard
		sepIdx = idx + 1
	}
	upKey := parent.KeyAt(sepIdx)

	// 内部页合并要把分隔键拉下来占住右页的哨兵位，所以装得下的条件是 <=
	if left.GetSize()+right.GetSize() <= left.GetMaxSize() {
		adoptFrom := left.GetSize()
		left.Append(upKey, right.ChildAt(0))
		for i := 1; i < right.GetSize(); i++ {
			left.Append(right.KeyAt(i), right.ChildAt(i))
		}
		right.SetSize(0)

		if err := t.adoptChildren(left, adoptFrom, leftGuard.PageID()); err != nil {
			leftGuard.Drop()
			rightGuard.Drop()
			return err
		}

		rightID := rightGuard.PageID()
		t.log.Debug("internal merge",
			zap.Int32("left", int32(leftGuard.PageID())),
			zap.Int32("right", int32(rightID)))

		leftGuard.Drop()
		rightGuard.Drop()
		t.bpm.DeletePage(rightID)

		return t.deleteInternalEntry(ctx, upKey, rightID)
	}

	if isLast {
		// 从左兄弟借最后一个条目：右页整体右移，拉下来的分隔键补在下标 1
		ls := left.GetSize()
		borrowKey := left.KeyAt(ls - 1)
		borrowChild := left.ChildAt(ls - 1)
		right.ShiftData(1)
		right.SetChildAt(0, borrowChild)
		right.SetKeyAt(1, upKey)
		left.IncreaseSize(-1)
		parent.SetKeyAt(sepIdx, borrowKey)

		if err := t.adoptChild(borrowChild, rightGuard.PageID()); err != nil {
			leftGuard.Drop()
			rightGuard.Drop()
			return err
		}
	} else {
		// 从右兄弟借第一个孩子：分隔键拉下来接到左页末尾，右页新首键顶上去
		borrowChild := right.ChildAt(0)
		left.Append(upKey, borrowChild)
		newSep := right.KeyAt(1)
		right.ShiftData(-1)
		parent.SetKeyAt(sepIdx, newSep)

		if err := t.adoptChild(borrowChild, leftGuard.PageID()); err != nil {
			leftGuard.Drop()
			rightGuard.Drop()
			return err
		}
	}

	leftGuard.Drop()
	rightGuard.Drop()
	return nil
}

// adoptChild 修正单个孩子页的父指针
func (t *BPlusTree) adoptChild(childID, parentID page.PageID) error {
	guard, err := t.bpm.FetchPageBasic(childID)
	if err != nil {
		return err
	}
	view := page.NewBTreePage(guard.Page(), t.keySize)
	if view.GetParentPageID() != parentID {
		view.SetParentPageID(parentID)
		guard.SetDirty()
	}
	guard.Drop()
	return nil
}

// adoptChildren 修正 [from, size) 范围内所有孩子页的父指针
func (t *BPlusTree) adoptChildren(node *page.InternalPage, from int, parentID page.PageID) error {
	for i := from; i < node.GetSize(); i++ {
		if err := t.adoptChild(node.ChildAt(i), parentID); err != nil {
			return err
		}
	}
	return nil
}
