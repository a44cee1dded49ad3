package storage

import (
	"context"
	"errors"

	"dagvault/pkg/multihash"
)

var (
	// ErrBlockNotFound 表示派生路径上没有块
	ErrBlockNotFound = errors.New("block not found")
	// ErrIOFailure 表示底层存储介质出错 (区别于 "不存在")
	ErrIOFailure = errors.New("block storage i/o failure")
	// ErrContentMismatch 表示同一个哈希下已经存在不同的字节，这是调用方错误
	ErrContentMismatch = errors.New("different content already stored under this hash")
	// ErrAmbiguousHash 表示短哈希匹配到多个块
	ErrAmbiguousHash = errors.New("ambiguous hash prefix")
)

// Store 定义了块存储后端的接口
// 实现可以是本地磁盘、对象存储，或者在它们之上加一层缓存
//
// 块是不可变的: 同一个 (hash, data) 重复 Put 是幂等的；没有 Delete，回收不在这一层
type Store interface {
	// Put 把序列化后的节点字节存到由 hash 派生出的位置
	Put(ctx context.Context, hash multihash.Multihash, data []byte) error

	// Get 读取块的原始字节
	// 不存在时返回 ErrBlockNotFound，其他读取错误包装 ErrIOFailure
	Get(ctx context.Context, hash multihash.Multihash) ([]byte, error)

	// Has 检查块是否存在 (用于去重)
	Has(ctx context.Context, hash multihash.Multihash) (bool, error)

	// ExpandHash 把 hex 短哈希展开成完整的 multihash
	ExpandHash(ctx context.Context, prefix multihash.Prefix) (multihash.Multihash, error)
}
