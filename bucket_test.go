package packedmap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestBucketEmptySingleChained(t *testing.T) {
	var b bucket[int, string]
	require.True(t, b.isEmpty())
	require.False(t, b.isSingle())
	require.False(t, b.isChained())

	e := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e)
	require.False(t, b.isEmpty())
	require.True(t, b.isSingle())
	require.False(t, b.isChained())

	n := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n)
	require.False(t, b.isSingle())
	require.True(t, b.isChained())
}

func TestBucketSearch(t *testing.T) {
	var b bucket[int, string]
	e1 := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e1)
	require.Nil(t, b.search(2))
	require.Same(t, e1, b.search(1))

	n2 := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n2)
	require.Equal(t, &n2.entry, b.search(2))
	require.Same(t, e1, b.search(1))
	require.Nil(t, b.search(3))
}

// TestBucketInsertNodeChainLayout checks the exact tagged-pointer layout of
// a three-element chain: head -> n3 -> n2 -> e1, with n3.next carrying the
// node tag (0) and n2.next carrying the entry tag (1).
func TestBucketInsertNodeChainLayout(t *testing.T) {
	var b bucket[int, string]
	e1 := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e1)

	n2 := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n2)
	require.Equal(t, tagEntry, tagOf(n2.next))
	require.Equal(t, unsafe.Pointer(e1), untag(n2.next))

	n3 := &node[int, string]{entry: Entry[int, string]{Key: 3, Value: "three"}}
	b.insertNode(n3)
	require.Equal(t, tagNode, tagOf(b.head))
	require.Equal(t, unsafe.Pointer(n3), untag(b.head))
	require.Equal(t, uintptr(0), tagOf(n3.next))
	require.Equal(t, unsafe.Pointer(n2), untag(n3.next))
}

func TestBucketRemoveCase1SingleEntry(t *testing.T) {
	var b bucket[int, string]
	e := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e)

	wasEntry, demote := b.remove(unsafe.Pointer(e))
	require.True(t, wasEntry)
	require.Nil(t, demote)
	require.True(t, b.isEmpty())
}

// TestBucketRemoveCase2HeadNode exercises removing the chain's head node
// directly, the same address search returns for a key matched at the head
// of a chain (Map.Erase reinterprets it as a *node via the entry-first
// layout before calling remove).
func TestBucketRemoveCase2HeadNode(t *testing.T) {
	var b bucket[int, string]
	e1 := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e1)
	n2 := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n2)

	wasEntry, demote := b.remove(unsafe.Pointer(n2))
	require.False(t, wasEntry)
	require.Nil(t, demote)
	require.True(t, b.isSingle())
	require.Equal(t, e1, b.search(1))
}

func TestBucketRemoveCase3TailEntryCollapsesToSingle(t *testing.T) {
	var b bucket[int, string]
	e1 := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e1)
	n2 := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n2)

	wasEntry, demote := b.remove(unsafe.Pointer(e1))
	require.True(t, wasEntry)
	require.Same(t, n2, demote)
	// The bucket now transiently references n2's address tagged as an
	// entry, ahead of the caller constructing the real replacement.
	require.True(t, b.isSingle())
	require.Equal(t, unsafe.Pointer(n2), untag(b.head))
}

func TestBucketRemoveCase3TailEntryOfLongerChain(t *testing.T) {
	var b bucket[int, string]
	e1 := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e1)
	n2 := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n2)
	n3 := &node[int, string]{entry: Entry[int, string]{Key: 3, Value: "three"}}
	b.insertNode(n3)

	wasEntry, demote := b.remove(unsafe.Pointer(e1))
	require.True(t, wasEntry)
	require.Same(t, n2, demote)
	require.True(t, b.isChained())
	// n3's link to n2 must now carry the entry tag, ready for patchEntry.
	require.Equal(t, tagEntry, tagOf(n3.next))
	require.Equal(t, unsafe.Pointer(n2), untag(n3.next))
}

// TestBucketRemoveCase4InteriorNode exercises splicing out a node from the
// middle of a chain, the same case Map.Erase hits removing an interior
// chain member.
func TestBucketRemoveCase4InteriorNode(t *testing.T) {
	var b bucket[int, string]
	e1 := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e1)
	n2 := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n2)
	n3 := &node[int, string]{entry: Entry[int, string]{Key: 3, Value: "three"}}
	b.insertNode(n3)

	wasEntry, demote := b.remove(unsafe.Pointer(n2))
	require.False(t, wasEntry)
	require.Nil(t, demote)
	require.True(t, b.isChained())
	require.Nil(t, b.search(2))
	require.Equal(t, &n3.entry, b.search(3))
	require.Equal(t, e1, b.search(1))
}

func TestBucketPatchEntrySingle(t *testing.T) {
	var b bucket[int, string]
	e := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e)

	moved := &Entry[int, string]{Key: 1, Value: "one"}
	b.patchEntry(unsafe.Pointer(e), unsafe.Pointer(moved))
	require.Equal(t, moved, b.search(1))
}

func TestBucketPatchEntryInChain(t *testing.T) {
	var b bucket[int, string]
	e1 := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e1)
	n2 := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n2)

	moved := &Entry[int, string]{Key: 1, Value: "one"}
	b.patchEntry(unsafe.Pointer(e1), unsafe.Pointer(moved))
	require.Equal(t, moved, b.search(1))
	require.Equal(t, &n2.entry, b.search(2))
}

func TestBucketPatchNode(t *testing.T) {
	var b bucket[int, string]
	e1 := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e1)
	n2 := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n2)
	n3 := &node[int, string]{entry: Entry[int, string]{Key: 3, Value: "three"}}
	b.insertNode(n3)

	moved := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	moved.next = n2.next
	b.patchNode(unsafe.Pointer(n2), unsafe.Pointer(moved))
	require.Equal(t, &moved.entry, b.search(2))
	require.Equal(t, e1, b.search(1))
	require.Equal(t, &n3.entry, b.search(3))
}

func TestBucketForEachStopsEarly(t *testing.T) {
	var b bucket[int, string]
	e1 := &Entry[int, string]{Key: 1, Value: "one"}
	b.insertEntry(e1)
	n2 := &node[int, string]{entry: Entry[int, string]{Key: 2, Value: "two"}}
	b.insertNode(n2)

	var visited []int
	b.forEach(func(e *Entry[int, string]) bool {
		visited = append(visited, e.Key)
		return false
	})
	require.Len(t, visited, 1)
}
