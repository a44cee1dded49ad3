package unixfs

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// 与 unixfs.proto 的 Data message 一致:
//
//	required DataType Type = 1; optional bytes Data = 2;
//	optional uint64 filesize = 3; repeated uint64 blocksizes = 4;
const (
	typeField       protowire.Number = 1
	dataField       protowire.Number = 2
	fileSizeField   protowire.Number = 3
	blockSizesField protowire.Number = 4
)

// Marshal 确定性地序列化 payload
// blocksizes 按 proto2 默认的非 packed 形式写出
func (p *Payload) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, typeField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(p.Type))
	if p.Data != nil {
		buf = protowire.AppendTag(buf, dataField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, p.Data)
	}
	if p.FileSize != nil {
		buf = protowire.AppendTag(buf, fileSizeField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, *p.FileSize)
	}
	for _, s := range p.BlockSizes {
		buf = protowire.AppendTag(buf, blockSizesField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, s)
	}
	return append(buf, p.unknown...)
}

// Unmarshal 解析 payload，任何解析失败都归为 ErrSchemaViolation
// blocksizes 同时接受 packed 与非 packed 两种写法
func Unmarshal(data []byte) (*Payload, error) {
	p := &Payload{}
	hasType := false

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, protowire.ParseError(n))
		}
		field := data
		data = data[n:]

		switch {
		case num == typeField && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: type: %v", ErrSchemaViolation, protowire.ParseError(m))
			}
			p.Type, hasType = DataType(v), true
			data = data[m:]
		case num == dataField && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: data: %v", ErrSchemaViolation, protowire.ParseError(m))
			}
			p.Data = append([]byte{}, v...)
			data = data[m:]
		case num == fileSizeField && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: filesize: %v", ErrSchemaViolation, protowire.ParseError(m))
			}
			p.FileSize = &v
			data = data[m:]
		case num == blockSizesField && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: blocksizes: %v", ErrSchemaViolation, protowire.ParseError(m))
			}
			p.BlockSizes = append(p.BlockSizes, v)
			data = data[m:]
		case num == blockSizesField && typ == protowire.BytesType:
			packed, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: blocksizes: %v", ErrSchemaViolation, protowire.ParseError(m))
			}
			for len(packed) > 0 {
				v, k := protowire.ConsumeVarint(packed)
				if k < 0 {
					return nil, fmt.Errorf("%w: packed blocksizes: %v", ErrSchemaViolation, protowire.ParseError(k))
				}
				p.BlockSizes = append(p.BlockSizes, v)
				packed = packed[k:]
			}
			data = data[m:]
		case num <= blockSizesField:
			return nil, fmt.Errorf("%w: field %d has wire type %d", ErrSchemaViolation, num, typ)
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrSchemaViolation, num, protowire.ParseError(m))
			}
			p.unknown = append(p.unknown, field[:n+m]...)
			data = data[m:]
		}
	}

	if !hasType {
		return nil, fmt.Errorf("%w: missing type", ErrSchemaViolation)
	}
	return p, nil
}
