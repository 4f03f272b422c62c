package merkle

import "sync"

// Cache holds the tree for one allowlist version and rebuilds it lazily the
// first time a newer version is requested.
type Cache struct {
	mu      sync.Mutex
	version int64
	tree    *Tree
}

// Get returns the tree for version, calling load to fetch the addresses only
// when the cached tree is missing or built from another version.
func (c *Cache) Get(version int64, load func() ([]string, error)) (*Tree, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tree != nil && c.version == version {
		return c.tree, nil
	}

	addresses, err := load()
	if err != nil {
		return nil, err
	}
	tree, err := Build(addresses)
	if err != nil {
		return nil, err
	}
	c.tree, c.version = tree, version
	return tree, nil
}
