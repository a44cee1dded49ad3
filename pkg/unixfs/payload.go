package unixfs

import (
	"errors"
	"fmt"

	"dagvault/pkg/dag"
)

// ErrSchemaViolation 表示解码出来的 payload 违反了大小不变量
var ErrSchemaViolation = errors.New("unixfs schema violation")

// DataType 是 payload 的类型 (取值与 unixfs.proto 一致)
type DataType int32

const (
	TypeRaw       DataType = 0
	TypeDirectory DataType = 1
	TypeFile      DataType = 2
	TypeMetadata  DataType = 3
	TypeSymlink   DataType = 4
	TypeHAMTShard DataType = 5
)

func (t DataType) String() string {
	switch t {
	case TypeRaw:
		return "raw"
	case TypeDirectory:
		return "directory"
	case TypeFile:
		return "file"
	case TypeMetadata:
		return "metadata"
	case TypeSymlink:
		return "symlink"
	case TypeHAMTShard:
		return "hamt-shard"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

// IsFileLike 表示可以按 BlockSizes 重组出文件内容的类型
func (t DataType) IsFileLike() bool {
	return t == TypeFile || t == TypeRaw
}

// Payload 是装在 dag.Node.Data 里的文件切分信息
type Payload struct {
	Type DataType
	// Data 是内联数据 (叶子的文件内容 / symlink 的目标)，nil 表示不存在
	Data []byte
	// FileSize 是声明的逻辑文件大小，nil 表示不存在
	FileSize *uint64
	// BlockSizes[i] 是第 i 条 Link 所指子树贡献的逻辑字节数
	BlockSizes []uint64

	unknown []byte
}

// EncodeLeaf 构造叶子 payload: Type=File, Data=b, FileSize=len(b)
func EncodeLeaf(b []byte) *Payload {
	if b == nil {
		b = []byte{}
	}
	size := uint64(len(b))
	return &Payload{Type: TypeFile, Data: b, FileSize: &size}
}

// EncodeInterior 构造中间节点 payload: 没有内联数据，FileSize=sum(childSizes)
func EncodeInterior(childSizes []uint64) *Payload {
	var total uint64
	for _, s := range childSizes {
		total += s
	}
	sizes := make([]uint64, len(childSizes))
	copy(sizes, childSizes)
	return &Payload{Type: TypeFile, FileSize: &total, BlockSizes: sizes}
}

// NewDirectory 构造目录 payload，目录项通过带名字的 Link 表达
func NewDirectory() *Payload {
	return &Payload{Type: TypeDirectory}
}

// NewSymlink 构造符号链接 payload，目标路径放在 Data 里
func NewSymlink(target string) *Payload {
	return &Payload{Type: TypeSymlink, Data: []byte(target)}
}

// Size 返回声明的文件大小
func (p *Payload) Size() (uint64, bool) {
	if p.FileSize == nil {
		return 0, false
	}
	return *p.FileSize, true
}

// Node 把 payload 包装进一个 dag.Node
func (p *Payload) Node(links ...dag.Link) *dag.Node {
	n := &dag.Node{Data: p.Marshal()}
	for _, l := range links {
		n.AddLink(l)
	}
	return n
}

// Decode 从节点中取出 payload 并校验大小不变量
//   - 文件类节点: len(BlockSizes) == len(Links)
//   - 叶子 (无 Link): FileSize == len(Data)
//   - 中间节点: FileSize == len(Data) + sum(BlockSizes)，没有内联数据时即 sum(BlockSizes)
func Decode(n *dag.Node) (*Payload, error) {
	if !n.HasData() {
		return nil, fmt.Errorf("%w: node carries no payload", ErrSchemaViolation)
	}
	p, err := Unmarshal(n.Data)
	if err != nil {
		return nil, err
	}
	if !p.Type.IsFileLike() {
		return p, nil
	}

	if len(p.BlockSizes) != len(n.Links) {
		return nil, fmt.Errorf("%w: %d block sizes for %d links", ErrSchemaViolation, len(p.BlockSizes), len(n.Links))
	}

	size, ok := p.Size()
	if !ok {
		return p, nil
	}
	if len(n.Links) == 0 {
		if p.Data != nil && size != uint64(len(p.Data)) {
			return nil, fmt.Errorf("%w: leaf declares %d bytes but carries %d", ErrSchemaViolation, size, len(p.Data))
		}
		return p, nil
	}

	sum := uint64(len(p.Data))
	for _, s := range p.BlockSizes {
		sum += s
	}
	if size != sum {
		return nil, fmt.Errorf("%w: interior declares %d bytes but block sizes sum to %d", ErrSchemaViolation, size, sum)
	}
	return p, nil
}
