package disk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dagvault/pkg/multihash"
	"dagvault/pkg/storage"

	"golang.org/x/sync/singleflight"
)

const (
	blocksDir = "blocks"
	blockExt  = ".data"
	shardLen  = multihash.MinPrefixLen
)

// Adapter 实现了 storage.Store 接口，块以文件形式保存在 root/blocks 下
type Adapter struct {
	rootPath string // 比如: /home/user/.dagvault

	// 同一个哈希的并发写入只真正执行一次 (纯性能优化，正确性由内容寻址保证)
	inflight singleflight.Group
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保 blocks 目录存在
	if err := os.MkdirAll(filepath.Join(root, blocksDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create block storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

func (s *Adapter) Root() string { return s.rootPath }

// DerivePath 返回哈希对应的物理路径，是一个纯函数
// 策略: 以完整 hex (含算法与长度前缀) 的前 8 个字符作为分片子目录
// Example: "1220abcd..." -> root/blocks/1220abcd/1220abcd....data
func DerivePath(root string, hash multihash.Multihash) string {
	hex := hash.Hex()
	shard := hex
	if len(hex) > shardLen {
		shard = hex[:shardLen]
	}
	return filepath.Join(root, blocksDir, shard, hex+blockExt)
}

func (s *Adapter) layout(hash multihash.Multihash) string {
	return DerivePath(s.rootPath, hash)
}

// Put 写入一个块
// 相同的 (hash, data) 重复写入是幂等的；同一路径已有不同内容时返回 ErrContentMismatch
func (s *Adapter) Put(ctx context.Context, hash multihash.Multihash, data []byte) error {
	targetPath := s.layout(hash)
	_, err, shared := s.inflight.Do(targetPath, func() (any, error) {
		return nil, s.write(targetPath, data)
	})
	// 共享结果的调用方可能带着不同的字节，写完后再和落盘内容比一次
	if err == nil && shared {
		err = s.write(targetPath, data)
	}
	if err != nil {
		return fmt.Errorf("put %s: %w", hash, err)
	}
	return nil
}

func (s *Adapter) write(targetPath string, data []byte) error {
	// 1. 检查是否存在 (幂等性)
	existing, err := os.ReadFile(targetPath)
	if err == nil {
		if !bytes.Equal(existing, data) {
			return storage.ErrContentMismatch
		}
		return nil // 已经存在，直接跳过 (CAS 的好处)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", storage.ErrIOFailure, err)
	}

	// 2. 准备分片目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrIOFailure, err)
	}

	// 3. 原子写入 (Atomic Write)
	// 先写到临时文件再 Rename: 要么文件不存在，要么文件是完整的
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrIOFailure, err)
	}
	// Rename 成功后这个删除会失败，无害
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("%w: %v", storage.ErrIOFailure, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrIOFailure, err)
	}

	// 4. 移动到最终位置
	// 另一个进程可能抢先写入了同样的字节，Rename 覆盖同内容文件不影响正确性
	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrIOFailure, err)
	}
	return nil
}

// Get 读取块
func (s *Adapter) Get(ctx context.Context, hash multihash.Multihash) ([]byte, error) {
	data, err := os.ReadFile(s.layout(hash))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", storage.ErrBlockNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrIOFailure, hash, err)
	}
	return data, nil
}

func (s *Adapter) Has(ctx context.Context, hash multihash.Multihash) (bool, error) {
	_, err := os.Stat(s.layout(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", storage.ErrIOFailure, err)
}

// ExpandHash 在前缀对应的分片目录里查找唯一匹配的块
func (s *Adapter) ExpandHash(ctx context.Context, prefix multihash.Prefix) (multihash.Multihash, error) {
	shardDir := filepath.Join(s.rootPath, blocksDir, prefix.Shard())
	entries, err := os.ReadDir(shardDir)
	if errors.Is(err, os.ErrNotExist) {
		return multihash.Multihash{}, fmt.Errorf("%w: prefix %s", storage.ErrBlockNotFound, prefix)
	}
	if err != nil {
		return multihash.Multihash{}, fmt.Errorf("%w: %v", storage.ErrIOFailure, err)
	}

	var matches []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, blockExt) {
			continue // 跳过 temp-* 临时文件
		}
		hex := strings.TrimSuffix(name, blockExt)
		if strings.HasPrefix(hex, prefix.String()) {
			matches = append(matches, hex)
		}
	}

	switch len(matches) {
	case 0:
		return multihash.Multihash{}, fmt.Errorf("%w: prefix %s", storage.ErrBlockNotFound, prefix)
	case 1:
		return multihash.FromHex(matches[0])
	default:
		return multihash.Multihash{}, fmt.Errorf("%w: %s matches %d blocks", storage.ErrAmbiguousHash, prefix, len(matches))
	}
}
