package chunker

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	boxochunker "github.com/ipfs/boxo/chunker"
)

// FastCDC 的默认参数 (单位: 字节)
// MaxSize 控制在 1MiB 以内，保证单个叶子块可以被其他节点整块传输
const (
	MinSize   = 64 * 1024  // 64KB
	AvgSize   = 256 * 1024 // 256KB
	MaxSize   = 512 * 1024 // 512KB
	NormLevel = 2

	// FastCDCName 是配置里选择 FastCDC 的名字，可写成 "fastcdc-<min>-<avg>-<max>"
	FastCDCName = "fastcdc"
)

var ErrInvalidSpec = errors.New("invalid chunker spec")

// Splitter 按顺序产出文件的数据块，结束时返回 io.EOF
// boxo 的所有 Splitter 都满足这个接口
type Splitter interface {
	NextBytes() ([]byte, error)
}

// New 按名字创建切分器
//   - "" 或 "fastcdc": 默认参数的 FastCDC
//   - "fastcdc-<min>-<avg>-<max>": 自定义参数的 FastCDC
//   - 其他: 交给 boxo 解析，例如 "size-262144"、"rabin"、"buzhash"
func New(r io.Reader, spec string) (Splitter, error) {
	if spec == "" || spec == FastCDCName {
		return NewFastCDC(r), nil
	}
	if strings.HasPrefix(spec, FastCDCName+"-") {
		parts := strings.Split(strings.TrimPrefix(spec, FastCDCName+"-"), "-")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSpec, spec)
		}
		var sizes [3]int
		for i, p := range parts {
			v, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSpec, spec, err)
			}
			sizes[i] = v
		}
		return NewFastCDCSize(r, sizes[0], sizes[1], sizes[2])
	}

	s, err := boxochunker.FromString(r, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return s, nil
}

// FastCDC 是基于 Gear Hash 的内容定义切分 (Content-Defined Chunking)
// 它从 reader 流式读取，最多缓存 max 字节
type FastCDC struct {
	r        io.Reader
	min, avg int
	max      int
	maskS    uint64
	maskL    uint64

	buf []byte
	eof bool
}

// NewFastCDC 使用默认参数
func NewFastCDC(r io.Reader) *FastCDC {
	c, _ := NewFastCDCSize(r, MinSize, AvgSize, MaxSize)
	return c
}

// NewFastCDCSize 要求 0 < min < avg < max
func NewFastCDCSize(r io.Reader, minSize, avgSize, maxSize int) (*FastCDC, error) {
	if minSize <= 0 || minSize >= avgSize || avgSize >= maxSize {
		return nil, fmt.Errorf("%w: fastcdc sizes must satisfy 0 < min < avg < max, got %d/%d/%d",
			ErrInvalidSpec, minSize, avgSize, maxSize)
	}
	// 预计算掩码: 归一化区域用更严的掩码，之后放宽
	bits := int(math.Round(math.Log2(float64(avgSize))))
	if bits <= NormLevel || bits+NormLevel >= 64 {
		return nil, fmt.Errorf("%w: fastcdc avg size %d out of range", ErrInvalidSpec, avgSize)
	}
	return &FastCDC{
		r:     r,
		min:   minSize,
		avg:   avgSize,
		max:   maxSize,
		maskS: uint64(1<<(bits+NormLevel)) - 1,
		maskL: uint64(1<<(bits-NormLevel)) - 1,
		buf:   make([]byte, 0, maxSize),
	}, nil
}

// NextBytes 返回下一个块；数据读完后返回 io.EOF
func (c *FastCDC) NextBytes() ([]byte, error) {
	// 1. 把缓冲区填满到 max (或读到流结束)
	if !c.eof && len(c.buf) < c.max {
		n, err := io.ReadFull(c.r, c.buf[len(c.buf):c.max])
		c.buf = c.buf[:len(c.buf)+n]
		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			c.eof = true
		case err != nil:
			return nil, err
		}
	}
	if len(c.buf) == 0 {
		return nil, io.EOF
	}

	// 2. 找切点，拷贝出块，剩余数据前移
	end := c.cut(c.buf)
	chunk := make([]byte, end)
	copy(chunk, c.buf[:end])
	c.buf = c.buf[:copy(c.buf, c.buf[end:])]
	return chunk, nil
}

// cut 返回 data 中第一个块的结束 offset
func (c *FastCDC) cut(data []byte) int {
	n := len(data)
	// 剩余不足最小块，直接收尾
	if n <= c.min {
		return n
	}

	fp := uint64(0)
	idx := c.min
	normLimit := min(c.avg, n)
	maxLimit := min(c.max, n)

	scan := func(limit int, mask uint64) bool {
		for ; idx < limit; idx++ {
			fp = (fp << 1) + gearTable[data[idx]]
			if (fp & mask) == 0 {
				return true
			}
		}
		return false
	}

	// A. 归一化区域 (严掩码)
	if scan(normLimit, c.maskS) {
		return idx + 1
	}
	// B. 普通区域 (宽掩码)
	if scan(maxLimit, c.maskL) {
		return idx + 1
	}
	// C. 强制切分
	return maxLimit
}
