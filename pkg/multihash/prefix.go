package multihash

import (
	"fmt"
	"strings"
)

// MinPrefixLen 是短哈希的最小长度，等于块存储分片目录名的长度
const MinPrefixLen = 8

// Prefix 是 multihash hex 形式的前缀 (例如 "12207028")，用于短哈希展开
type Prefix string

func (p Prefix) String() string { return string(p) }

// ParsePrefix 校验并规范化 (小写) 一个 hex 前缀
func ParsePrefix(s string) (Prefix, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < MinPrefixLen {
		return "", fmt.Errorf("%w: prefix %q shorter than %d hex chars", ErrMalformedEncoding, s, MinPrefixLen)
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: prefix %q is not hex", ErrMalformedEncoding, s)
		}
	}
	return Prefix(s), nil
}

// Shard 返回前缀所在的分片目录名
func (p Prefix) Shard() string { return string(p)[:MinPrefixLen] }

// HasPrefix 判断 m 的 hex 形式是否以 p 开头
func (m Multihash) HasPrefix(p Prefix) bool {
	return strings.HasPrefix(m.Hex(), string(p))
}
