package dag

import (
	"context"
	"errors"
	"fmt"

	"dagvault/pkg/multihash"
)

// ErrNotLoaded 是编程错误: 在 Load 成功之前访问了 Handle 的内容
// 它只会通过 panic 抛出，和 I/O 类错误不是一个层级
var ErrNotLoaded = errors.New("dag: node content accessed before load")

// BlockGetter 是 Handle 加载内容所需的最小能力 (storage.Store 满足它)
type BlockGetter interface {
	Get(ctx context.Context, hash multihash.Multihash) ([]byte, error)
}

// nodeState 是 Unloaded | Loaded(Node) 的和类型
type nodeState interface {
	isNodeState()
}

type unloaded struct{}

type loaded struct {
	node *Node
}

func (unloaded) isNodeState() {}
func (loaded) isNodeState()   {}

// Handle 把一个 Multihash 和 (可能尚未加载的) 节点内容绑在一起
// 首次 Load 时从存储读取并缓存，之后在 Handle 的生命周期内一直复用
// Handle 不是并发安全的: 同一时间应该只由一个遍历上下文持有
type Handle struct {
	id    multihash.Multihash
	state nodeState
}

// FromHash 只凭哈希引用创建 Handle，内容处于未加载状态
func FromHash(hash multihash.Multihash) *Handle {
	return &Handle{id: hash, state: unloaded{}}
}

// FromNode 用已有节点创建 Handle，身份由序列化字节计算
func FromNode(n *Node) *Handle {
	return &Handle{id: n.Identity(), state: loaded{node: n}}
}

func (h *Handle) ID() multihash.Multihash { return h.id }

// IsLoaded 判断内容是否已经就绪
func (h *Handle) IsLoaded() bool {
	_, ok := h.state.(loaded)
	return ok
}

// Load 确保内容已加载
// 已加载时什么都不做；否则 Get + Unmarshal。失败时原样返回错误，Handle 保持未加载状态
// 这里不做任何重试，重试策略属于理解错误是否短暂的调用方
func (h *Handle) Load(ctx context.Context, getter BlockGetter) error {
	if h.IsLoaded() {
		return nil
	}
	raw, err := getter.Get(ctx, h.id)
	if err != nil {
		return fmt.Errorf("load %s: %w", h.id, err)
	}
	n, err := Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("load %s: %w", h.id, err)
	}
	h.state = loaded{node: n}
	return nil
}

// Node 返回已加载的内容；未加载时 panic(ErrNotLoaded)
func (h *Handle) Node() *Node {
	switch s := h.state.(type) {
	case loaded:
		return s.node
	default:
		panic(fmt.Errorf("%w: %s", ErrNotLoaded, h.id))
	}
}

// Children 为每条 Link 创建一个未加载的 Handle (按 Link 顺序)
func (h *Handle) Children() []*Handle {
	n := h.Node()
	children := make([]*Handle, len(n.Links))
	for i, l := range n.Links {
		children[i] = FromHash(l.Hash)
	}
	return children
}
