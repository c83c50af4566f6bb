package cache

// Namespace is a typed view of the cache over keys sharing a prefix.
type Namespace[T any] struct {
	c      *Cache
	prefix string
}

func NewNamespace[T any](c *Cache, prefix string) Namespace[T] {
	return Namespace[T]{c: c, prefix: prefix}
}

func (n Namespace[T]) Key(id string) string {
	return n.prefix + id
}

func (n Namespace[T]) Get(id string, loader func() (T, error)) (T, error) {
	return Get(n.c, n.Key(id), loader)
}

func (n Namespace[T]) Invalidate(id string) {
	n.c.Invalidate(n.Key(id))
}
