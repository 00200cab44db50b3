package di

import (
	"sync"
	"testing"
)

// Test 基本插入查找
func TestHashTreeAddGet(t *testing.T) {
	var root *hashTree[int, string]

	for i := 0; i < 100; i++ {
		root = root.AddOrUpdate(uint32(i), i, "v")
	}

	for i := 0; i < 100; i++ {
		v, ok := root.Get(uint32(i), i)
		if !ok || v != "v" {
			t.Fatalf("Missing key %d", i)
		}
	}
	if _, ok := root.Get(1000, 1000); ok {
		t.Error("Unexpected hit for absent key")
	}
}

// Test 更新已有键
func TestHashTreeUpdate(t *testing.T) {
	var root *hashTree[int, int]
	root = root.AddOrUpdate(1, 1, 10)
	root = root.AddOrUpdate(1, 1, 20)

	v, _ := root.Get(1, 1)
	if v != 20 {
		t.Errorf("Expected updated value 20, got %d", v)
	}
}

// Test 持久性：旧根不受新写入影响
func TestHashTreePersistence(t *testing.T) {
	var root *hashTree[int, int]
	for i := 0; i < 10; i++ {
		root = root.AddOrUpdate(uint32(i), i, i)
	}

	old := root
	root = root.AddOrUpdate(100, 100, 100)
	root = root.AddOrUpdate(5, 5, -5)

	if _, ok := old.Get(100, 100); ok {
		t.Error("Old root must not see the new key")
	}
	if v, _ := old.Get(5, 5); v != 5 {
		t.Errorf("Old root must keep the old value, got %d", v)
	}
	if v, _ := root.Get(5, 5); v != -5 {
		t.Errorf("New root must see the update, got %d", v)
	}
}

// Test 哈希冲突走冲突列表
func TestHashTreeConflicts(t *testing.T) {
	var root *hashTree[int, string]
	root = root.AddOrUpdate(7, 1, "one")
	root = root.AddOrUpdate(7, 2, "two")
	root = root.AddOrUpdate(7, 3, "three")
	root = root.AddOrUpdate(7, 2, "TWO")

	if v, ok := root.Get(7, 1); !ok || v != "one" {
		t.Error("Node entry lost")
	}
	if v, ok := root.Get(7, 2); !ok || v != "TWO" {
		t.Errorf("Conflict entry not updated: %v", v)
	}
	if v, ok := root.Get(7, 3); !ok || v != "three" {
		t.Error("Second conflict entry lost")
	}
	if _, ok := root.Get(7, 4); ok {
		t.Error("Absent conflict key must miss")
	}
}

// Test 中序遍历按哈希升序，冲突紧随节点
func TestHashTreeEnumerateOrdered(t *testing.T) {
	var root *hashTree[int, int]
	for _, i := range []int{5, 1, 9, 3, 7, 0, 8, 2, 6, 4} {
		root = root.AddOrUpdate(uint32(i), i, i)
	}

	var got []int
	root.Enumerate(func(k, _ int) bool {
		got = append(got, k)
		return true
	})

	if len(got) != 10 {
		t.Fatalf("Expected 10 entries, got %d", len(got))
	}
	for i, k := range got {
		if k != i {
			t.Fatalf("Expected hash-ordered traversal, got %v", got)
		}
	}
}

// Test AVL 平衡：顺序插入后树高为 O(log n)
func TestHashTreeBalanced(t *testing.T) {
	var root *hashTree[int, int]
	const n = 1 << 12
	for i := 0; i < n; i++ {
		root = root.AddOrUpdate(uint32(i), i, i)
	}
	// 4096 节点的 AVL 树高不超过 1.44*log2(n) ≈ 17.3（检查以 18 为上限）
	if root.heightOf() > 18 {
		t.Errorf("Tree is unbalanced: height %d for %d nodes", root.heightOf(), n)
	}
}

// Test ref.Swap 并发写入不丢失
func TestRefSwapConcurrent(t *testing.T) {
	var r ref[int, int]

	const writers = 8
	const perWriter = 100
	var wg sync.WaitGroup
	wg.Add(writers)

	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := w*perWriter + i
				for r.Swap(func(t *hashTree[int, int]) *hashTree[int, int] {
					return t.AddOrUpdate(uint32(key), key, key)
				}) != nil {
				}
			}
		}(w)
	}
	wg.Wait()

	count := 0
	r.Load().Enumerate(func(_, _ int) bool {
		count++
		return true
	})
	if count != writers*perWriter {
		t.Errorf("Expected %d entries after concurrent swaps, got %d", writers*perWriter, count)
	}
}

// Test 请求链打印
func TestRequestChainString(t *testing.T) {
	c := NewContainer()
	req := newRequest(c, TypeOf[*Scope](), "cache")
	child := req.Push(TypeOf[int](), nil, &Dependency{Kind: DepCtorParam, Name: "arg0"})

	s := child.String()
	if s == "" {
		t.Fatal("Expected a printable chain")
	}
	if len(s) <= len(child.ServiceType.String()) {
		t.Errorf("Chain should include the parent frame: %q", s)
	}
}
