package dag

import (
	"context"
	"sync/atomic"
	"testing"

	"dagvault/pkg/multihash"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// mockHash 生成一个合法的 sha2-256 multihash
func mockHash(input string) multihash.Multihash {
	return multihash.Sum(multihash.SHA2_256, []byte(input))
}

func strPtr(s string) *string { return &s }

// mapGetter 是一个内存版的 BlockGetter，同时统计 Get 被调用的次数
type mapGetter struct {
	blocks   map[multihash.Multihash][]byte
	getCount int32
	err      error
}

func newMapGetter() *mapGetter {
	return &mapGetter{blocks: make(map[multihash.Multihash][]byte)}
}

func (g *mapGetter) Get(ctx context.Context, hash multihash.Multihash) ([]byte, error) {
	atomic.AddInt32(&g.getCount, 1)
	if g.err != nil {
		return nil, g.err
	}
	data, ok := g.blocks[hash]
	if !ok {
		return nil, errNotFound
	}
	return data, nil
}

func (g *mapGetter) put(n *Node) multihash.Multihash {
	id, raw := n.Encode()
	g.blocks[id] = raw
	return id
}

// mustUnmarshal 解码失败直接终止测试
func mustUnmarshal(t *testing.T, data []byte) *Node {
	t.Helper()
	n, err := Unmarshal(data)
	require.NoError(t, err)
	return n
}
