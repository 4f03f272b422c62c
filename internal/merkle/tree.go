// Package merkle builds the allowlist membership tree the drop contract
// verifies claims against.
//
// Leaves are keccak256 of the 20 address bytes, sorted and de-duplicated.
// Parents hash the sorted concatenation of their children, so proofs carry no
// left/right flags. A node without a sibling is promoted to the next level
// unchanged.
package merkle

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Hash is a 32-byte keccak256 digest.
type Hash [32]byte

// Hex returns the 0x-prefixed hex encoding of h.
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText encodes h as 0x hex in JSON.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func keccak(parts ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		d.Write(p)
	}
	var h Hash
	d.Sum(h[:0])
	return h
}

func hashPair(a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return keccak(a[:], b[:])
}

// Leaf returns the leaf hash for an address.
func Leaf(address string) (Hash, error) {
	if !common.IsHexAddress(address) {
		return Hash{}, fmt.Errorf("invalid address %q", address)
	}
	return keccak(common.HexToAddress(address).Bytes()), nil
}

// Tree is an immutable membership tree over a set of addresses.
type Tree struct {
	levels [][]Hash
	index  map[Hash]int
}

// Build constructs the tree. The input order and duplicates do not affect
// the root.
func Build(addresses []string) (*Tree, error) {
	seen := make(map[Hash]struct{}, len(addresses))
	leaves := make([]Hash, 0, len(addresses))
	for _, a := range addresses {
		leaf, err := Leaf(a)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[leaf]; ok {
			continue
		}
		seen[leaf] = struct{}{}
		leaves = append(leaves, leaf)
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i][:], leaves[j][:]) < 0 })

	t := &Tree{levels: [][]Hash{leaves}, index: make(map[Hash]int, len(leaves))}
	for i, l := range leaves {
		t.index[l] = i
	}

	for level := leaves; len(level) > 1; {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Len returns the number of distinct addresses in the tree.
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// Root returns the tree root. An empty tree has the zero root.
func (t *Tree) Root() Hash {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return Hash{}
	}
	return top[0]
}

// Proof returns the sibling path for address, or false if it is not a member.
func (t *Tree) Proof(address string) ([]Hash, bool) {
	leaf, err := Leaf(address)
	if err != nil {
		return nil, false
	}
	idx, ok := t.index[leaf]
	if !ok {
		return nil, false
	}

	proof := []Hash{}
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, true
}

// Verify checks a proof for address against root.
func Verify(root Hash, address string, proof []Hash) bool {
	h, err := Leaf(address)
	if err != nil {
		return false
	}
	for _, p := range proof {
		h = hashPair(h, p)
	}
	return h == root
}
