package meta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"dagvault/pkg/multihash"

	"github.com/stretchr/testify/require"
)

// 注意：文件名必须以 _test.go 结尾，否则会被编译进生产代码

// linearOf 生成测试用的线性哈希
func linearOf(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func mockRoot(input string) multihash.Multihash {
	return multihash.Sum(multihash.SHA2_256, []byte(input))
}

// mustUpdateName 适用于预期成功的场景
func mustUpdateName(t *testing.T, repo *Repository, name string, root multihash.Multihash, oldVersion int64, msgAndArgs ...any) {
	t.Helper()
	err := repo.UpdateName(context.Background(), name, root, oldVersion)
	require.NoError(t, err, msgAndArgs...)
}
