package dag

import (
	"dagvault/pkg/multihash"
)

// Link 代表 Merkle DAG 中的一条边 (指向子节点的哈希引用)
type Link struct {
	Hash multihash.Multihash
	// Name 是可选的可读名字 (目录项)，nil 表示未设置
	// 空字符串和未设置在线上是两种不同的编码，所以这里必须区分
	Name *string
	// Tsize 是作者声明的子树大小: 目标节点序列化长度 + 目标各 Link 的 Tsize
	// 只是提示，读写时都不会校验
	Tsize uint64

	unknown []byte
}

// NewLink 创建一条无名 Link
func NewLink(hash multihash.Multihash, tsize uint64) Link {
	return Link{Hash: hash, Tsize: tsize}
}

// NewNamedLink 创建一条带名字的 Link (目录项)
func NewNamedLink(name string, hash multihash.Multihash, tsize uint64) Link {
	return Link{Hash: hash, Name: &name, Tsize: tsize}
}

// NameOrEmpty 返回名字，未设置时返回 ""
func (l Link) NameOrEmpty() string {
	if l.Name == nil {
		return ""
	}
	return *l.Name
}

// Node 是 DAG 中的一个节点: 可选的不透明 payload + 有序的 Link 列表
// Data 为 nil 表示没有 payload；非 nil 的空切片表示 payload 存在但为空
// Link 的顺序有语义 (文件重组顺序、按名字查找取第一个)，不能排序
type Node struct {
	Data  []byte
	Links []Link

	// 无法识别的字段，原样保留并在序列化时原样写回
	unknown []byte
}

// NewNode 创建一个带 payload 的节点
func NewNode(data []byte) *Node {
	if data == nil {
		data = []byte{}
	}
	return &Node{Data: data}
}

// HasData 判断 payload 是否存在
func (n *Node) HasData() bool { return n.Data != nil }

// AddLink 追加一条 Link (保持插入顺序)
func (n *Node) AddLink(l Link) {
	n.Links = append(n.Links, l)
}

// LinkByName 返回第一条名字匹配的 Link
func (n *Node) LinkByName(name string) (Link, bool) {
	for _, l := range n.Links {
		if l.Name != nil && *l.Name == name {
			return l, true
		}
	}
	return Link{}, false
}

// UnknownFields 返回解码时保留下来的未知字段原始字节
func (n *Node) UnknownFields() []byte { return n.unknown }

// CumulativeSize 返回声明的累计大小: 本节点序列化长度 + 所有 Link 的 Tsize
// Tsize 未经校验，所以这个值同样只是提示
func (n *Node) CumulativeSize() uint64 {
	total := uint64(len(Marshal(n)))
	for _, l := range n.Links {
		total += l.Tsize
	}
	return total
}

// Identity 返回节点身份: 默认算法对序列化字节的 multihash
// 身份是派生属性，不存储；只要序列化字节变了 (比如 Link 换了顺序)，身份就变了
func (n *Node) Identity() multihash.Multihash {
	return multihash.Sum(multihash.DefaultAlgorithm, Marshal(n))
}

// Encode 同时返回序列化字节和身份，避免调用方序列化两次
func (n *Node) Encode() (multihash.Multihash, []byte) {
	return n.EncodeWith(multihash.DefaultAlgorithm)
}

// EncodeWith 与 Encode 相同，但使用指定的哈希算法
func (n *Node) EncodeWith(alg multihash.Algorithm) (multihash.Multihash, []byte) {
	raw := Marshal(n)
	return multihash.Sum(alg, raw), raw
}
