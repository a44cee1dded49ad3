package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dagvault/pkg/multihash"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNameNotFound     = errors.New("name not found")
	ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 文件索引 (秒传)
// -----------------------------------------------------------------------------

// GetFileIndex 按线性哈希查询，未命中返回 (nil, nil)
func (r *Repository) GetFileIndex(ctx context.Context, linearHash string) (*FileIndex, error) {
	var idx FileIndex
	err := r.db.GetConn().WithContext(ctx).
		Where("linear_hash = ?", linearHash).
		First(&idx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

// SaveFileIndex 记录一次导入，已存在时保持原值 (First write wins)
func (r *Repository) SaveFileIndex(ctx context.Context, linearHash string, root multihash.Multihash, size int64, blockSizes []uint64, chunker string) error {
	if blockSizes == nil {
		blockSizes = []uint64{}
	}
	sizesJSON, err := json.Marshal(blockSizes)
	if err != nil {
		return fmt.Errorf("failed to marshal block sizes: %w", err)
	}

	idx := FileIndex{
		LinearHash: linearHash,
		Root:       root.Hex(),
		SizeBytes:  size,
		BlockSizes: datatypes.JSON(sizesJSON),
		Chunker:    chunker,
	}
	err = r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "linear_hash"}},
			DoNothing: true,
		}).
		Create(&idx).Error
	if err != nil {
		return fmt.Errorf("failed to save file index: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// 2. 名字 (可变指针)
// -----------------------------------------------------------------------------

func (r *Repository) GetName(ctx context.Context, name string) (*Name, error) {
	var n Name
	err := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNameNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateName 原子更新名字的指向 (CAS)
// oldVersion 为 0 表示创建；否则必须等于当前版本号
func (r *Repository) UpdateName(ctx context.Context, name string, root multihash.Multihash, oldVersion int64) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 场景 A: 首次创建
		if oldVersion == 0 {
			n := Name{Name: name, Root: root.Hex(), Version: 1}
			if err := tx.Create(&n).Error; err != nil {
				// 兼容 PG 与 SQLite 的唯一约束错误
				if errors.Is(err, gorm.ErrDuplicatedKey) ||
					strings.Contains(err.Error(), "UNIQUE constraint failed") {
					return ErrConcurrentUpdate
				}
				return fmt.Errorf("failed to create name: %w", err)
			}
			return nil
		}

		// 场景 B: UPDATE names SET root = ?, version = version + 1 WHERE name = ? AND version = ?
		result := tx.Model(&Name{}).
			Where("name = ? AND version = ?", name, oldVersion).
			Updates(map[string]any{
				"root":       root.Hex(),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		return nil
	})
}

// ListNames 按名字排序列出全部名字
func (r *Repository) ListNames(ctx context.Context) ([]Name, error) {
	var names []Name
	err := r.db.GetConn().WithContext(ctx).
		Order("name ASC").
		Find(&names).Error
	return names, err
}
