package unixfs

import (
	"context"
	"errors"
	"sync/atomic"

	"dagvault/pkg/dag"
	"dagvault/pkg/multihash"
)

var errMissing = errors.New("missing block")

// memGetter 是内存版 BlockGetter，记录 Get 次数用于验证惰性加载
type memGetter struct {
	blocks   map[multihash.Multihash][]byte
	getCount int32
}

func newMemGetter() *memGetter {
	return &memGetter{blocks: make(map[multihash.Multihash][]byte)}
}

func (g *memGetter) Get(ctx context.Context, hash multihash.Multihash) ([]byte, error) {
	atomic.AddInt32(&g.getCount, 1)
	data, ok := g.blocks[hash]
	if !ok {
		return nil, errMissing
	}
	return data, nil
}

// put 存入节点，返回指向它的 Link (Tsize = 序列化长度 + 子 Link 的 Tsize)
func (g *memGetter) put(n *dag.Node) dag.Link {
	id, raw := n.Encode()
	g.blocks[id] = raw
	return dag.NewLink(id, n.CumulativeSize())
}

// buildHelloWorld 构造经典的两叶子 "hello " + "world" DAG，返回根 Link
func buildHelloWorld(g *memGetter) dag.Link {
	hello := g.put(EncodeLeaf([]byte("hello ")).Node())
	world := g.put(EncodeLeaf([]byte("world")).Node())
	return g.put(EncodeInterior([]uint64{6, 5}).Node(hello, world))
}
