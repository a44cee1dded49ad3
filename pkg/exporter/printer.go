package exporter

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"dagvault/pkg/dag"
	"dagvault/pkg/multihash"
	"dagvault/pkg/unixfs"

	"github.com/fxamacker/cbor/v2"
)

// LinkSummary 是一条 Link 的展示形式
type LinkSummary struct {
	Name  string `cbor:"name"`
	Hash  string `cbor:"hash"`
	Tsize uint64 `cbor:"tsize"`
}

// Summary 是一个块的结构化描述 (dv ls)
type Summary struct {
	Hash string `cbor:"hash"`

	// Type 是 unixfs 类型；Data 不是合法 payload 时为 "opaque"
	Type string `cbor:"type"`

	BlockSize  int           `cbor:"block_size"`
	DataLen    int           `cbor:"data_len"`
	FileSize   *uint64       `cbor:"file_size,omitempty"`
	BlockSizes []uint64      `cbor:"block_sizes,omitempty"`
	Links      []LinkSummary `cbor:"links"`

	// CumulativeSize 来自 Link 上声明的 Tsize，未经校验
	CumulativeSize uint64 `cbor:"cumulative_size"`

	// Rehash 是块原始字节的 SHA2-512 multihash，便于和其他实现交叉校验
	Rehash string `cbor:"rehash"`
}

const opaqueType = "opaque"

// Describe 读取一个块并生成描述
func (e *Exporter) Describe(ctx context.Context, hash multihash.Multihash) (*Summary, error) {
	raw, err := e.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	node, err := dag.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", hash, err)
	}

	s := &Summary{
		Hash:           hash.String(),
		Type:           opaqueType,
		BlockSize:      len(raw),
		DataLen:        len(node.Data),
		Links:          make([]LinkSummary, len(node.Links)),
		CumulativeSize: node.CumulativeSize(),
		Rehash:         multihash.Sum(multihash.SHA2_512, raw).String(),
	}
	for i, l := range node.Links {
		s.Links[i] = LinkSummary{Name: l.NameOrEmpty(), Hash: l.Hash.String(), Tsize: l.Tsize}
	}

	// 不是 unixfs 节点也可以展示，只是没有类型信息
	if p, err := unixfs.Decode(node); err == nil {
		s.Type = p.Type.String()
		s.DataLen = len(p.Data)
		s.FileSize = p.FileSize
		s.BlockSizes = p.BlockSizes
	}
	return s, nil
}

// PrintSummary 以人类可读的形式输出
func PrintSummary(s *Summary, w io.Writer) error {
	fmt.Fprintf(w, "Hash:       %s\n", s.Hash)
	fmt.Fprintf(w, "Type:       %s\n", s.Type)
	fmt.Fprintf(w, "Block:      %s\n", fmtSize(uint64(s.BlockSize)))
	fmt.Fprintf(w, "Data:       %s\n", fmtSize(uint64(s.DataLen)))
	if s.FileSize != nil {
		fmt.Fprintf(w, "FileSize:   %s\n", fmtSize(*s.FileSize))
	}
	fmt.Fprintf(w, "Cumulative: %s\n", fmtSize(s.CumulativeSize))
	fmt.Fprintf(w, "SHA2-512:   %s\n", s.Rehash)

	if len(s.Links) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "#\tHASH\tTSIZE\tBLOCKSIZE\tNAME\n")
	for i, l := range s.Links {
		blockSize := "-"
		if i < len(s.BlockSizes) {
			blockSize = fmtSize(s.BlockSizes[i])
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, l.Hash, fmtSize(l.Tsize), blockSize, l.Name)
	}
	return tw.Flush()
}

func fmtSize(s uint64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}

// 确定性 CBOR 编码选项，相同的 Summary 总是得到相同的字节
var encOptions = cbor.EncOptions{
	// Map Key 排序 (Canonical)
	Sort: cbor.SortCanonical,
	// 禁止不定长编码
	IndefLength: cbor.IndefLengthForbidden,
	Time:        cbor.TimeUnix,
	TimeTag:     cbor.EncTagNone,
}

var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// 限制容器大小和嵌套深度
	MaxArrayElements: 1 << 16,
	MaxMapPairs:      1024,
	MaxNestedLevels:  16,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
}

var dm, _ = decOptions.DecMode()

// EncodeSummary 输出机器可读的 canonical CBOR
func EncodeSummary(s *Summary) ([]byte, error) {
	data, err := em.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return data, nil
}

func DecodeSummary(data []byte) (*Summary, error) {
	var s Summary
	if err := dm.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
