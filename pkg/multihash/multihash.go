package multihash

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
)

// ErrMalformedEncoding 表示输入不是某种编码 (binary / hex / base58) 的合法实例
var ErrMalformedEncoding = errors.New("malformed multihash encoding")

// Algorithm 是 multihash 的算法代码
// 线上格式只给算法代码留了 1 个字节，所以这里只收录单字节代码的算法
type Algorithm uint8

const (
	SHA1     Algorithm = Algorithm(mh.SHA1)     // 0x11
	SHA2_256 Algorithm = Algorithm(mh.SHA2_256) // 0x12
	SHA2_512 Algorithm = Algorithm(mh.SHA2_512) // 0x13
	SHA3_512 Algorithm = Algorithm(mh.SHA3_512) // 0x14
	SHA3_256 Algorithm = Algorithm(mh.SHA3_256) // 0x16
	BLAKE3   Algorithm = Algorithm(mh.BLAKE3)   // 0x1e

	// DefaultAlgorithm 用于计算节点身份 (Node identity)
	DefaultAlgorithm = SHA2_256
)

var algorithmNames = map[Algorithm]string{
	SHA1:     "sha1",
	SHA2_256: "sha2-256",
	SHA2_512: "sha2-512",
	SHA3_512: "sha3-512",
	SHA3_256: "sha3-256",
	BLAKE3:   "blake3",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(a))
}

// Known 判断是否是受支持的算法
func (a Algorithm) Known() bool {
	_, ok := algorithmNames[a]
	return ok
}

// ParseAlgorithm 把 "sha2-256" 这类名字转换成 Algorithm (配置文件 / CLI 使用)
func ParseAlgorithm(name string) (Algorithm, error) {
	for a, n := range algorithmNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unsupported hash algorithm %q", name)
}

// Multihash 是一个自描述的摘要: 算法代码 + 摘要字节
// digest 用 string 保存，这样 Multihash 是可比较的值类型，可以直接做 map key
// 两个 Multihash 相等当且仅当算法和摘要都相等，与它是从哪种文本形式解析来的无关
type Multihash struct {
	code   Algorithm
	digest string
}

// Sum 计算 data 的 multihash，对任何字节序列都不会失败
func Sum(alg Algorithm, data []byte) Multihash {
	if !alg.Known() {
		// 调用方传入了未知算法属于编程错误
		panic(fmt.Sprintf("multihash: unsupported algorithm %s", alg))
	}
	encoded, err := mh.Sum(data, uint64(alg), -1)
	if err != nil {
		panic(fmt.Sprintf("multihash: %s sum failed: %v", alg, err))
	}
	decoded, err := mh.Decode(encoded)
	if err != nil {
		panic(fmt.Sprintf("multihash: decode of freshly computed digest failed: %v", err))
	}
	return Multihash{code: alg, digest: string(decoded.Digest)}
}

// New 用已有的摘要构造 Multihash
func New(alg Algorithm, digest []byte) (Multihash, error) {
	if !alg.Known() {
		return Multihash{}, fmt.Errorf("%w: unknown algorithm code 0x%02x", ErrMalformedEncoding, uint8(alg))
	}
	if len(digest) == 0 || len(digest) > 0xff {
		return Multihash{}, fmt.Errorf("%w: digest length %d out of range", ErrMalformedEncoding, len(digest))
	}
	return Multihash{code: alg, digest: string(digest)}, nil
}

func (m Multihash) Algorithm() Algorithm { return m.code }
func (m Multihash) Digest() []byte       { return []byte(m.digest) }
func (m Multihash) IsZero() bool         { return m.digest == "" }
func (m Multihash) Equal(o Multihash) bool {
	return m == o
}

// Binary 返回线上格式: [algorithm_code][digest_length][digest_bytes...]
func (m Multihash) Binary() []byte {
	buf := make([]byte, 0, 2+len(m.digest))
	buf = append(buf, byte(m.code), byte(len(m.digest)))
	return append(buf, m.digest...)
}

// Hex 返回完整二进制形式 (含算法与长度前缀) 的小写 hex
func (m Multihash) Hex() string { return hex.EncodeToString(m.Binary()) }

// Base58 返回二进制形式的 base58 (比特币字母表)，即常见的 "Qm..." 形式
func (m Multihash) Base58() string { return base58.Encode(m.Binary()) }

// String 默认展示 base58
func (m Multihash) String() string {
	if m.IsZero() {
		return ""
	}
	return m.Base58()
}

// FromBinary 解析线上格式
func FromBinary(buf []byte) (Multihash, error) {
	if len(buf) < 2 {
		return Multihash{}, fmt.Errorf("%w: buffer of %d bytes has no header", ErrMalformedEncoding, len(buf))
	}
	code, length := Algorithm(buf[0]), int(buf[1])
	body := buf[2:]
	if len(body) < length {
		return Multihash{}, fmt.Errorf("%w: declared digest length %d, got %d bytes", ErrMalformedEncoding, length, len(body))
	}
	if len(body) > length {
		return Multihash{}, fmt.Errorf("%w: %d trailing bytes after digest", ErrMalformedEncoding, len(body)-length)
	}
	return New(code, body)
}

// FromHex 解析 Hex() 的输出
func FromHex(s string) (Multihash, error) {
	if len(s)%2 != 0 {
		return Multihash{}, fmt.Errorf("%w: odd-length hex", ErrMalformedEncoding)
	}
	buf, err := hex.DecodeString(s)
	if err != nil {
		return Multihash{}, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return FromBinary(buf)
}

// FromBase58 解析 Base58() 的输出
func FromBase58(s string) (Multihash, error) {
	if s == "" {
		return Multihash{}, fmt.Errorf("%w: empty base58 string", ErrMalformedEncoding)
	}
	buf, err := base58.Decode(s)
	if err != nil {
		return Multihash{}, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return FromBinary(buf)
}

// Parse 同时接受 hex 和 base58 文本 (CLI 用)
// 先按 hex 尝试: 合法的 hex multihash 以算法代码开头，几乎不可能同时是同长度的合法 base58 multihash
func Parse(s string) (Multihash, error) {
	if m, err := FromHex(s); err == nil {
		return m, nil
	}
	m, err := FromBase58(s)
	if err != nil {
		return Multihash{}, fmt.Errorf("%q is neither hex nor base58 multihash: %w", s, err)
	}
	return m, nil
}
