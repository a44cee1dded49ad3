package dag

import (
	"errors"
	"fmt"

	"dagvault/pkg/multihash"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrCorruptEncoding 表示节点字节无法解析
var ErrCorruptEncoding = errors.New("corrupt node encoding")

// 线上格式与 dag-pb 的 protobuf 定义一致:
//
//	message PBLink { optional bytes Hash = 1; optional string Name = 2; optional uint64 Tsize = 3; }
//	message PBNode { optional bytes Data = 1; repeated PBLink Links = 2; }
const (
	nodeDataField  protowire.Number = 1
	nodeLinksField protowire.Number = 2

	linkHashField  protowire.Number = 1
	linkNameField  protowire.Number = 2
	linkTsizeField protowire.Number = 3
)

// Marshal 确定性地序列化节点
// 顺序固定为: Data (若存在) -> 按顺序的 Links -> 未知字段
// 字段完全相同的两个节点一定得到字节完全相同的输出
//
// 输入的字段顺序不会被记录: Links 在 Data 之前、或未知字段夹在已知字段之间的外来节点，
// 重新序列化后会被规范化成上面的顺序，身份也随之改变；规范化后的字节再解析、再序列化保持不变
func Marshal(n *Node) []byte {
	var buf []byte
	if n.Data != nil {
		buf = protowire.AppendTag(buf, nodeDataField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, n.Data)
	}
	for _, l := range n.Links {
		buf = protowire.AppendTag(buf, nodeLinksField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, marshalLink(l))
	}
	return append(buf, n.unknown...)
}

func marshalLink(l Link) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, linkHashField, protowire.BytesType)
	buf = protowire.AppendBytes(buf, l.Hash.Binary())
	if l.Name != nil {
		buf = protowire.AppendTag(buf, linkNameField, protowire.BytesType)
		buf = protowire.AppendString(buf, *l.Name)
	}
	buf = protowire.AppendTag(buf, linkTsizeField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, l.Tsize)
	return append(buf, l.unknown...)
}

// Unmarshal 解析节点字节
// 截断、长度前缀无法解析、非法 tag、已知字段 wire type 不对、重复的单值字段都视为损坏
// 合法但未知的字段会被保留，Marshal 时原样写回
func Unmarshal(data []byte) (*Node, error) {
	n := &Node{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, field, value []byte) error {
		switch num {
		case nodeDataField:
			if typ != protowire.BytesType {
				return fmt.Errorf("data field has wire type %d", typ)
			}
			if n.Data != nil {
				return fmt.Errorf("duplicate data field")
			}
			n.Data = append([]byte{}, value...)
		case nodeLinksField:
			if typ != protowire.BytesType {
				return fmt.Errorf("links field has wire type %d", typ)
			}
			l, err := unmarshalLink(value)
			if err != nil {
				return fmt.Errorf("link %d: %w", len(n.Links), err)
			}
			n.Links = append(n.Links, l)
		default:
			n.unknown = append(n.unknown, field...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func unmarshalLink(data []byte) (Link, error) {
	var (
		l       Link
		hasHash bool
		hasSize bool
	)
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, field, value []byte) error {
		switch num {
		case linkHashField:
			if typ != protowire.BytesType || hasHash {
				return fmt.Errorf("bad hash field")
			}
			mh, err := multihash.FromBinary(value)
			if err != nil {
				return err
			}
			l.Hash, hasHash = mh, true
		case linkNameField:
			if typ != protowire.BytesType || l.Name != nil {
				return fmt.Errorf("bad name field")
			}
			name := string(value)
			l.Name = &name
		case linkTsizeField:
			if typ != protowire.VarintType || hasSize {
				return fmt.Errorf("bad tsize field")
			}
			v, n := protowire.ConsumeVarint(value)
			if n < 0 {
				return protowire.ParseError(n)
			}
			l.Tsize, hasSize = v, true
		default:
			l.unknown = append(l.unknown, field...)
		}
		return nil
	})
	if err != nil {
		return Link{}, err
	}
	if !hasHash {
		return Link{}, fmt.Errorf("%w: link without hash", ErrCorruptEncoding)
	}
	return l, nil
}

// walkFields 逐个解析 protobuf 字段
// field 是整个字段 (含 tag) 的原始字节；value 对 bytes 类型是去掉长度前缀后的内容，对 varint 是原始 varint 字节
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, field, value []byte) error) error {
	for len(data) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptEncoding, protowire.ParseError(tagLen))
		}

		var (
			value    []byte
			valueLen int
		)
		switch typ {
		case protowire.BytesType:
			value, valueLen = protowire.ConsumeBytes(data[tagLen:])
		case protowire.VarintType:
			_, valueLen = protowire.ConsumeVarint(data[tagLen:])
			if valueLen >= 0 {
				value = data[tagLen : tagLen+valueLen]
			}
		case protowire.Fixed32Type, protowire.Fixed64Type:
			valueLen = protowire.ConsumeFieldValue(num, typ, data[tagLen:])
			if valueLen >= 0 {
				value = data[tagLen : tagLen+valueLen]
			}
		default:
			// group 类型在 dag-pb 中不存在
			return fmt.Errorf("%w: unsupported wire type %d for field %d", ErrCorruptEncoding, typ, num)
		}
		if valueLen < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrCorruptEncoding, num, protowire.ParseError(valueLen))
		}

		total := tagLen + valueLen
		if err := fn(num, typ, data[:total], value); err != nil {
			if errors.Is(err, ErrCorruptEncoding) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
		}
		data = data[total:]
	}
	return nil
}
