package di

import (
	"reflect"
	"sync/atomic"
)

// hashTree 不可变的 AVL 树，按键的哈希值平衡。
// 所有写操作都是纯函数式的：返回新的树根，旧树保持可用。
// 哈希冲突的键值对挂在节点的 conflicts 列表上。
// 中序遍历按哈希升序产出条目，冲突条目紧随其节点。
//
// nil 接收者表示空树。
type hashTree[K comparable, V any] struct {
	hash      uint32
	key       K
	value     V
	conflicts []treeEntry[K, V]
	left      *hashTree[K, V]
	right     *hashTree[K, V]
	height    int
}

type treeEntry[K comparable, V any] struct {
	key   K
	value V
}

// Get 按哈希和键查找。
func (t *hashTree[K, V]) Get(hash uint32, key K) (V, bool) {
	for t != nil {
		switch {
		case hash < t.hash:
			t = t.left
		case hash > t.hash:
			t = t.right
		default:
			if t.key == key {
				return t.value, true
			}
			for _, e := range t.conflicts {
				if e.key == key {
					return e.value, true
				}
			}
			var zero V
			return zero, false
		}
	}
	var zero V
	return zero, false
}

// AddOrUpdate 插入或更新，返回新树根。
func (t *hashTree[K, V]) AddOrUpdate(hash uint32, key K, value V) *hashTree[K, V] {
	if t == nil {
		return &hashTree[K, V]{hash: hash, key: key, value: value, height: 1}
	}

	switch {
	case hash < t.hash:
		return rebalance(&hashTree[K, V]{
			hash: t.hash, key: t.key, value: t.value, conflicts: t.conflicts,
			left: t.left.AddOrUpdate(hash, key, value), right: t.right,
		})
	case hash > t.hash:
		return rebalance(&hashTree[K, V]{
			hash: t.hash, key: t.key, value: t.value, conflicts: t.conflicts,
			left: t.left, right: t.right.AddOrUpdate(hash, key, value),
		})
	default:
		n := &hashTree[K, V]{
			hash: t.hash, key: t.key, value: t.value, conflicts: t.conflicts,
			left: t.left, right: t.right, height: t.height,
		}
		if n.key == key {
			n.value = value
			return n
		}
		// 哈希冲突：复制冲突列表后更新或追加
		conflicts := make([]treeEntry[K, V], len(t.conflicts), len(t.conflicts)+1)
		copy(conflicts, t.conflicts)
		for i, e := range conflicts {
			if e.key == key {
				conflicts[i].value = value
				n.conflicts = conflicts
				return n
			}
		}
		n.conflicts = append(conflicts, treeEntry[K, V]{key: key, value: value})
		return n
	}
}

// Enumerate 中序遍历（哈希升序）。yield 返回 false 时提前终止。
func (t *hashTree[K, V]) Enumerate(yield func(K, V) bool) bool {
	if t == nil {
		return true
	}
	if !t.left.Enumerate(yield) {
		return false
	}
	if !yield(t.key, t.value) {
		return false
	}
	for _, e := range t.conflicts {
		if !yield(e.key, e.value) {
			return false
		}
	}
	return t.right.Enumerate(yield)
}

func (t *hashTree[K, V]) heightOf() int {
	if t == nil {
		return 0
	}
	return t.height
}

func rebalance[K comparable, V any](t *hashTree[K, V]) *hashTree[K, V] {
	lh, rh := t.left.heightOf(), t.right.heightOf()
	switch {
	case lh-rh > 1:
		l := t.left
		if l.right.heightOf() > l.left.heightOf() {
			l = rotateLeft(l)
		}
		return rotateRight(&hashTree[K, V]{
			hash: t.hash, key: t.key, value: t.value, conflicts: t.conflicts,
			left: l, right: t.right,
		})
	case rh-lh > 1:
		r := t.right
		if r.left.heightOf() > r.right.heightOf() {
			r = rotateRight(r)
		}
		return rotateLeft(&hashTree[K, V]{
			hash: t.hash, key: t.key, value: t.value, conflicts: t.conflicts,
			left: t.left, right: r,
		})
	default:
		t.height = 1 + max(lh, rh)
		return t
	}
}

func rotateRight[K comparable, V any](t *hashTree[K, V]) *hashTree[K, V] {
	l := t.left
	nr := withChildren(t, l.right, t.right)
	return withChildren(l, l.left, nr)
}

func rotateLeft[K comparable, V any](t *hashTree[K, V]) *hashTree[K, V] {
	r := t.right
	nl := withChildren(t, t.left, r.left)
	return withChildren(r, nl, r.right)
}

func withChildren[K comparable, V any](t, left, right *hashTree[K, V]) *hashTree[K, V] {
	return &hashTree[K, V]{
		hash: t.hash, key: t.key, value: t.value, conflicts: t.conflicts,
		left: left, right: right,
		height: 1 + max(left.heightOf(), right.heightOf()),
	}
}

// ref 持有树根的原子引用。读永不阻塞；写基于最新快照重建后 CAS 发布，
// 失败则重试，超过 50 次返回 ErrRetryExhausted 以避免活锁。
type ref[K comparable, V any] struct {
	root atomic.Pointer[hashTree[K, V]]
}

const swapRetryLimit = 50

func (r *ref[K, V]) Load() *hashTree[K, V] { return r.root.Load() }

func (r *ref[K, V]) Swap(update func(*hashTree[K, V]) *hashTree[K, V]) error {
	for i := 0; i < swapRetryLimit; i++ {
		old := r.root.Load()
		if r.root.CompareAndSwap(old, update(old)) {
			return nil
		}
	}
	return &ContainerError{Kind: ErrRetryExhausted, Message: ErrRetryExhausted.Error()}
}

func (r *ref[K, V]) Reset() { r.root.Store(nil) }

// typeHash 从 reflect.Type 的内部指针派生哈希。
// 同一类型的 reflect.Type 在进程内共享底层指针，哈希因此稳定。
func typeHash(t reflect.Type) uint32 {
	p := reflect.ValueOf(t).Pointer()
	p ^= p >> 16
	return uint32(p * 0x9E3779B1)
}

func intHash(i int) uint32 {
	return uint32(i) * 0x9E3779B1
}

// typeKey 带键解析缓存的复合键。
type typeKey struct {
	typ reflect.Type
	key any
}

func typeKeyHash(k typeKey) uint32 {
	h := typeHash(k.typ)
	switch v := k.key.(type) {
	case nil:
	case int:
		h = h*31 + intHash(v)
	case string:
		for i := 0; i < len(v); i++ {
			h = h*31 + uint32(v[i])
		}
	default:
		h = h*31 + typeHash(reflect.TypeOf(k.key))
	}
	return h
}
