package meta

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestRepo 构建隔离的测试环境
func setupTestRepo(t *testing.T) *Repository {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := NewWithConn(db)
	require.NoError(t, metaDB.Migrate())
	return NewRepository(metaDB)
}

func TestRepository_FileIndex_Flow(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	linear := linearOf("full_content")
	root := mockRoot("dag_root")

	// 1. 未命中
	got, err := repo.GetFileIndex(ctx, linear)
	require.NoError(t, err)
	assert.Nil(t, got, "Should return nil on miss")

	// 2. 首次写入
	require.NoError(t, repo.SaveFileIndex(ctx, linear, root, 1024, []uint64{512, 512}, "fastcdc"))

	// 3. 命中
	got, err = repo.GetFileIndex(ctx, linear)
	require.NoError(t, err)
	require.NotNil(t, got)
	gotRoot, err := got.RootHash()
	require.NoError(t, err)
	assert.Equal(t, root, gotRoot)
	assert.Equal(t, int64(1024), got.SizeBytes)
	assert.Equal(t, "fastcdc", got.Chunker)

	sizes, err := got.Sizes()
	require.NoError(t, err)
	assert.Equal(t, []uint64{512, 512}, sizes)
	assert.JSONEq(t, `[512,512]`, string(got.BlockSizes))

	// 4. 再次写入不同的根会被忽略 (First write wins)
	require.NoError(t, repo.SaveFileIndex(ctx, linear, mockRoot("other_root"), 1024, nil, "size-1024"))
	got, err = repo.GetFileIndex(ctx, linear)
	require.NoError(t, err)
	gotRoot, err = got.RootHash()
	require.NoError(t, err)
	assert.Equal(t, root, gotRoot, "Existing index should be immutable")

	var count int64
	require.NoError(t, repo.db.GetConn().Model(&FileIndex{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepository_FileIndex_EmptySizes(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	linear := linearOf("")
	require.NoError(t, repo.SaveFileIndex(ctx, linear, mockRoot("empty"), 0, nil, "fastcdc"))

	got, err := repo.GetFileIndex(ctx, linear)
	require.NoError(t, err)
	sizes, err := got.Sizes()
	require.NoError(t, err)
	assert.Empty(t, sizes)
}

func TestRepository_Name_CAS(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rootV1 := mockRoot("v1")
	rootV2 := mockRoot("v2")

	// 1. 首次创建
	mustUpdateName(t, repo, "dataset", rootV1, 0, "Initial creation failed")
	n, err := repo.GetName(ctx, "dataset")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n.Version)

	// 2. 版本号不对
	err = repo.UpdateName(ctx, "dataset", rootV2, 999)
	assert.ErrorIs(t, err, ErrConcurrentUpdate, "Should fail when version mismatches")

	// 3. 正确的版本号
	mustUpdateName(t, repo, "dataset", rootV2, 1, "Valid update failed")
	n, err = repo.GetName(ctx, "dataset")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n.Version)
	got, err := n.RootHash()
	require.NoError(t, err)
	assert.Equal(t, rootV2, got)
}

func TestRepository_Name_ConcurrentCreate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	mustUpdateName(t, repo, "HEAD", mockRoot("A"), 0)

	// 晚到的创建者以为 oldVersion 还是 0
	err := repo.UpdateName(ctx, "HEAD", mockRoot("B"), 0)
	assert.ErrorIs(t, err, ErrConcurrentUpdate, "Concurrent creation should return CAS error")
}

func TestRepository_Name_NotFoundAndList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNameNotFound)

	mustUpdateName(t, repo, "b", mockRoot("b"), 0)
	mustUpdateName(t, repo, "a", mockRoot("a"), 0)

	names, err := repo.ListNames(ctx)
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.Equal(t, "a", names[0].Name)
	assert.Equal(t, "b", names[1].Name)
}

func TestNewDB_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "meta.db")})
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.SaveFileIndex(ctx, linearOf("x"), mockRoot("x"), 1, []uint64{}, "fastcdc"))
}

func TestNewDB_UnsupportedDriver(t *testing.T) {
	_, err := NewDB(context.Background(), Config{Driver: "oracle"})
	assert.Error(t, err)
}
