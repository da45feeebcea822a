package buffer

import (
	"container/list"
	"sync"

	"github.com/pkg/errors"
)

// LRUKReplacer 负责追踪页面使用情况，决定驱逐哪个页面
// 这里管理的不是 PageID，而是 FrameID (缓冲池数组的索引)
//
// LRU-K 的核心：比较每个帧"倒数第 K 次访问"的时间戳 (K-distance)
// 访问还不满 K 次的帧视为 K-distance 无穷大，优先被驱逐
// 为了不在热路径上全量扫描，把帧分在两条链表里：
//   young: 访问次数 < K 的帧，按插入顺序排（新的在前）
//   kList: 访问次数 >= K 的帧，按倒数第 K 次访问的时间戳从旧到新排
type LRUKReplacer struct {
	mu        sync.Mutex
	k         int
	size      int // 当前可驱逐的帧数量
	timestamp uint64

	young    *list.List // 元素是 *lruKNode
	kList    *list.List
	youngMap map[int]*list.Element
	kMap     map[int]*list.Element
}

// lruKNode 记录单个帧的访问历史
// history 只保留最近 K 次访问的时间戳，旧的在前
type lruKNode struct {
	frameID   int
	history   []uint64
	evictable bool
}

// kDistance 是倒数第 K 次访问的时间戳（只在 len(history) == k 时有意义）
func (n *lruKNode) kDistance() uint64 {
	return n.history[0]
}

func NewLRUKReplacer(k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:        k,
		young:    list.New(),
		kList:    list.New(),
		youngMap: make(map[int]*list.Element),
		kMap:     make(map[int]*list.Element),
	}
}

// RecordAccess 记录一次访问
// 新帧进 young 链表；访问数刚到 K 时迁移到 kList；已在 kList 的重新按 K-distance 排位
func (r *LRUKReplacer) RecordAccess(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timestamp
	r.timestamp++

	if elem, ok := r.youngMap[frameID]; ok {
		node := elem.Value.(*lruKNode)
		node.history = append(node.history, now)
		if len(node.history) >= r.k {
			// 访问数到 K，从 young 毕业
			r.young.Remove(elem)
			delete(r.youngMap, frameID)
			r.insertKNode(node)
		}
		return
	}

	if elem, ok := r.kMap[frameID]; ok {
		node := elem.Value.(*lruKNode)
		node.history = append(node.history, now)
		if len(node.history) > r.k {
			node.history = node.history[1:]
		}
		// K-distance 变了，重新插入到正确位置
		r.kList.Remove(elem)
		delete(r.kMap, frameID)
		r.insertKNode(node)
		return
	}

	// 没见过的帧
	node := &lruKNode{frameID: frameID, history: []uint64{now}}
	if r.k == 1 {
		r.insertKNode(node)
		return
	}
	r.youngMap[frameID] = r.young.PushFront(node)
}

// insertKNode 按 K-distance 从小到大插入 kList（小 = 旧 = 先被驱逐）
func (r *LRUKReplacer) insertKNode(node *lruKNode) {
	dist := node.kDistance()
	for e := r.kList.Front(); e != nil; e = e.Next() {
		if e.Value.(*lruKNode).kDistance() > dist {
			r.kMap[node.frameID] = r.kList.InsertBefore(node, e)
			return
		}
	}
	r.kMap[node.frameID] = r.kList.PushBack(node)
}

// SetEvictable 设置帧是否可驱逐；对没记录过的帧调用是编程错误
func (r *LRUKReplacer) SetEvictable(frameID int, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node := r.lookup(frameID)
	if node == nil {
		return errors.Errorf("set evictable: unknown frame %d", frameID)
	}

	if node.evictable && !evictable {
		r.size--
	} else if !node.evictable && evictable {
		r.size++
	}
	node.evictable = evictable
	return nil
}

// Evict 选出一个牺牲帧并把它从 replacer 中移除
// 优先级：young 链表里最早插入的可驱逐帧（K-distance 无穷大，按 LRU-K 最差），
// 其次是 kList 里 K-distance 最旧的可驱逐帧
// 没有可驱逐的帧时返回 false
func (r *LRUKReplacer) Evict() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return -1, false
	}

	// young 从尾部（最早插入）往前扫
	for e := r.young.Back(); e != nil; e = e.Prev() {
		node := e.Value.(*lruKNode)
		if node.evictable {
			r.young.Remove(e)
			delete(r.youngMap, node.frameID)
			r.size--
			return node.frameID, true
		}
	}

	// kList 从头部（K-distance 最旧）往后扫
	for e := r.kList.Front(); e != nil; e = e.Next() {
		node := e.Value.(*lruKNode)
		if node.evictable {
			r.kList.Remove(e)
			delete(r.kMap, node.frameID)
			r.size--
			return node.frameID, true
		}
	}

	return -1, false
}

// Remove 把帧从 replacer 中移除（DeletePage 时用）
// 只允许对可驱逐的帧调用；不认识的帧是空操作
func (r *LRUKReplacer) Remove(frameID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.youngMap[frameID]; ok {
		if !elem.Value.(*lruKNode).evictable {
			return errors.Errorf("remove: frame %d is not evictable", frameID)
		}
		r.young.Remove(elem)
		delete(r.youngMap, frameID)
		r.size--
		return nil
	}

	if elem, ok := r.kMap[frameID]; ok {
		if !elem.Value.(*lruKNode).evictable {
			return errors.Errorf("remove: frame %d is not evictable", frameID)
		}
		r.kList.Remove(elem)
		delete(r.kMap, frameID)
		r.size--
		return nil
	}

	return nil
}

// Size 返回当前可驱逐的帧数量
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *LRUKReplacer) lookup(frameID int) *lruKNode {
	if elem, ok := r.youngMap[frameID]; ok {
		return elem.Value.(*lruKNode)
	}
	if elem, ok := r.kMap[frameID]; ok {
		return elem.Value.(*lruKNode)
	}
	return nil
}
