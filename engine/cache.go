package engine

import (
	"crypto/sha1"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"imagesim/types"
)

// embeddingCache memoizes embeddings by image content. The lru cache is
// internally locked, so no extra mutex is needed.
type embeddingCache struct {
	entries *lru.Cache[string, types.Embedding]
}

func newEmbeddingCache(size int) (*embeddingCache, error) {
	entries, err := lru.New[string, types.Embedding](size)
	if err != nil {
		return nil, err
	}
	return &embeddingCache{entries: entries}, nil
}

func (c *embeddingCache) get(key string) (types.Embedding, bool) {
	return c.entries.Get(key)
}

func (c *embeddingCache) add(key string, vec types.Embedding) {
	c.entries.Add(key, vec)
}

func contentKey(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
