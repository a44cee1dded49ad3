package meta

import (
	"encoding/json"
	"time"

	"dagvault/pkg/multihash"

	"gorm.io/datatypes"
)

// FileIndex 记录 "整个文件的线性 SHA-256" 到 "DAG 根" 的映射
// 同样的文件再次导入时可以直接复用已有的 DAG (秒传)
type FileIndex struct {
	// LinearHash 是文件字节流的 sha256 hex
	LinearHash string `gorm:"primaryKey;type:char(64)"`

	// Root 是 DAG 根的 multihash hex
	Root string `gorm:"type:varchar(160);not null;index"`

	SizeBytes int64

	// BlockSizes 是根节点的 blocksizes，JSON 数组
	BlockSizes datatypes.JSON

	// Chunker 记录导入时使用的切分器，换了切分器后根会不同
	Chunker string `gorm:"type:varchar(64)"`

	CreatedAt time.Time
}

func (FileIndex) TableName() string {
	return "file_indexes"
}

// RootHash 解析 Root 字段
func (f *FileIndex) RootHash() (multihash.Multihash, error) {
	return multihash.FromHex(f.Root)
}

func (f *FileIndex) Sizes() ([]uint64, error) {
	if len(f.BlockSizes) == 0 {
		return nil, nil
	}
	var sizes []uint64
	if err := json.Unmarshal(f.BlockSizes, &sizes); err != nil {
		return nil, err
	}
	return sizes, nil
}

// Name 是指向某个 DAG 根的可变名字 (块本身不可变，名字可以重新指向)
type Name struct {
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// Root 是 multihash hex
	Root string `gorm:"type:varchar(160);not null"`

	// Version 用于乐观锁 (CAS)，每次更新 +1
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

func (n *Name) RootHash() (multihash.Multihash, error) {
	return multihash.FromHex(n.Root)
}
