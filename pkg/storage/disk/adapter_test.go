package disk

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"dagvault/pkg/multihash"
	"dagvault/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockOf 模拟调用方: 数据决定哈希
func blockOf(data string) (multihash.Multihash, []byte) {
	return multihash.Sum(multihash.SHA2_256, []byte(data)), []byte(data)
}

func TestDerivePath_Layout(t *testing.T) {
	mh, err := multihash.FromBase58("QmVtU7ths96fMgZ8YSZAbKghyieq7AjxNdcqyVzxTt3qVe")
	require.NoError(t, err)

	got := DerivePath("/repo", mh)
	expected := filepath.Join("/repo", "blocks", "12207028",
		"122070286b9afa6620a66f715c7020d68af3d10e1a497971629c07606bfdb812303d.data")
	assert.Equal(t, expected, got)

	// 确定性
	assert.Equal(t, got, DerivePath("/repo", mh))
}

func TestDiskAdapter(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()
	hash, data := blockOf("hello world")

	// 2. 测试 Put
	require.NoError(t, store.Put(ctx, hash, data))

	// 验证文件是否真的存在于物理磁盘的分片目录中
	_, err = os.Stat(filepath.Join(tmpDir, "blocks", hash.Hex()[:8], hash.Hex()+".data"))
	assert.NoError(t, err, "文件应该存在于 Sharding 目录中")

	// 3. 测试 Has
	exists, err := store.Has(ctx, hash)
	assert.NoError(t, err)
	assert.True(t, exists)

	missing, _ := blockOf("not stored")
	exists, err = store.Has(ctx, missing)
	assert.NoError(t, err)
	assert.False(t, exists)

	// 4. 测试 Get
	content, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestDiskAdapter_PutIdempotent(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	hash, data := blockOf("same bytes")
	require.NoError(t, store.Put(ctx, hash, data))
	require.NoError(t, store.Put(ctx, hash, data), "重复写入相同内容不能失败")

	content, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestDiskAdapter_PutDifferentContentDetected(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	hash, data := blockOf("original")
	require.NoError(t, store.Put(ctx, hash, data))

	err = store.Put(ctx, hash, []byte("forged"))
	assert.ErrorIs(t, err, storage.ErrContentMismatch)

	// 原内容不能被覆盖
	content, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestDiskAdapter_GetMissingIsNotFound(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)

	hash, _ := blockOf("never written")
	_, err = store.Get(context.Background(), hash)
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)
	assert.NotErrorIs(t, err, storage.ErrIOFailure)
}

func TestDiskAdapter_GetIOFailure(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	// 在块路径上放一个目录，读取会失败但不是 "不存在"
	hash, _ := blockOf("broken")
	require.NoError(t, os.MkdirAll(DerivePath(tmpDir, hash), 0755))

	_, err = store.Get(context.Background(), hash)
	assert.ErrorIs(t, err, storage.ErrIOFailure)
	assert.NotErrorIs(t, err, storage.ErrBlockNotFound)
}

func TestDiskAdapter_ConcurrentPutSameHash(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	hash, data := blockOf("contended block")

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Put(ctx, hash, data)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	content, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, content)

	// 分片目录里不能残留临时文件
	entries, err := os.ReadDir(filepath.Dir(DerivePath(store.Root(), hash)))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDiskAdapter_ConcurrentPutDifferentContent(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	hash, _ := blockOf("contended block")

	// 一半调用方带着不同的字节，和真实内容同时写入
	payloads := [][]byte{[]byte("contended block"), []byte("forged block")}
	type result struct {
		data []byte
		err  error
	}
	results := make(chan result, 64)
	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := payloads[i%2]
			results <- result{data: data, err: store.Put(ctx, hash, data)}
		}()
	}
	wg.Wait()
	close(results)

	stored, err := store.Get(ctx, hash)
	require.NoError(t, err)

	// 与落盘内容不同的调用方必须全部失败
	for r := range results {
		if string(r.data) == string(stored) {
			assert.NoError(t, r.err)
		} else {
			assert.ErrorIs(t, r.err, storage.ErrContentMismatch)
		}
	}
}

func TestDiskAdapter_ExpandHash(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)
	ctx := context.Background()

	// 两个哈希共享 8 字符分片前缀，需要手工构造摘要
	digestA := make([]byte, 32)
	digestB := make([]byte, 32)
	digestB[3] = 0xff
	objA, err := multihash.New(multihash.SHA2_256, digestA)
	require.NoError(t, err)
	objB, err := multihash.New(multihash.SHA2_256, digestB)
	require.NoError(t, err)
	objC, dataC := blockOf("C")

	require.NoError(t, store.Put(ctx, objA, []byte("A")))
	require.NoError(t, store.Put(ctx, objB, []byte("B")))
	require.NoError(t, store.Put(ctx, objC, dataC))

	tests := []struct {
		name     string
		input    string
		wantHash multihash.Multihash
		wantErr  error
	}{
		{"Exact match", objC.Hex(), objC, nil},
		{"Unique prefix (8 chars)", objC.Hex()[:8], objC, nil},
		{"Unique prefix (long)", objA.Hex()[:12], objA, nil},
		{"Ambiguous prefix", objA.Hex()[:8], multihash.Multihash{}, storage.ErrAmbiguousHash},
		{"Not found in shard", objA.Hex()[:8] + "ab", multihash.Multihash{}, storage.ErrBlockNotFound},
		{"Shard missing", "12ffffff", multihash.Multihash{}, storage.ErrBlockNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, err := multihash.ParsePrefix(tt.input)
			require.NoError(t, err)

			got, err := store.ExpandHash(ctx, prefix)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHash, got)
		})
	}
}
