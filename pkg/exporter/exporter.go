package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dagvault/pkg/dag"
	"dagvault/pkg/multihash"
	"dagvault/pkg/storage"
	"dagvault/pkg/unixfs"
)

// ErrUnsafeName 表示目录项的名字会逃出还原目录
var ErrUnsafeName = errors.New("unsafe entry name")

type Exporter struct {
	store storage.Store
}

func NewExporter(store storage.Store) *Exporter {
	return &Exporter{store: store}
}

// ExportFile 按需拉取文件 DAG 的各个块，依次写入 writer
func (e *Exporter) ExportFile(ctx context.Context, hash multihash.Multihash, writer io.Writer) error {
	return e.exportHandle(ctx, dag.FromHash(hash), writer)
}

func (e *Exporter) exportHandle(ctx context.Context, h *dag.Handle, writer io.Writer) error {
	for chunk, err := range unixfs.Reconstruct(ctx, h, e.store) {
		if err != nil {
			return err
		}
		if _, err := writer.Write(chunk); err != nil {
			return fmt.Errorf("failed to write data of %s: %w", h.ID(), err)
		}
	}
	return nil
}

// RestoreCallback 在每个文件 (或符号链接) 落地后调用
type RestoreCallback func(path string, hash multihash.Multihash, size uint64)

// Restore 把 hash 指向的 DAG 还原到 target
// 目录递归还原；文件写入 target；符号链接按原目标重建
func (e *Exporter) Restore(ctx context.Context, hash multihash.Multihash, target string, onRestore RestoreCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// 1. 加载并解析节点
	h := dag.FromHash(hash)
	if err := h.Load(ctx, e.store); err != nil {
		return err
	}
	p, err := unixfs.Decode(h.Node())
	if err != nil {
		return fmt.Errorf("decode %s: %w", hash, err)
	}

	// 2. 不能经由已存在的符号链接写入
	if err := checkTarget(target); err != nil {
		return err
	}

	// 3. 按类型分发
	switch {
	case p.Type == unixfs.TypeDirectory:
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", target, err)
		}
		seen := make(map[string]struct{}, len(h.Node().Links))
		for _, l := range h.Node().Links {
			name := l.NameOrEmpty()
			if err := checkName(name); err != nil {
				return err
			}
			if _, dup := seen[name]; dup {
				return fmt.Errorf("%w: duplicate entry %q", ErrUnsafeName, name)
			}
			seen[name] = struct{}{}
			if err := e.Restore(ctx, l.Hash, filepath.Join(target, name), onRestore); err != nil {
				return err
			}
		}
		return nil

	case p.Type == unixfs.TypeSymlink:
		if err := os.Symlink(string(p.Data), target); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", target, err)
		}
		if onRestore != nil {
			onRestore(target, hash, 0)
		}
		return nil

	case p.Type.IsFileLike():
		file, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("failed to create file %s: %w", target, err)
		}
		// 复用已加载的根，流式写入
		if err := e.exportHandle(ctx, h, file); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		if onRestore != nil {
			size, _ := p.Size()
			onRestore(target, hash, size)
		}
		return nil

	default:
		return fmt.Errorf("cannot restore %s: unsupported type %s", hash, p.Type)
	}
}

// checkTarget 拒绝已存在的符号链接，MkdirAll / Create 会跟随它写到还原目录之外
func checkTarget(target string) error {
	info, err := os.Lstat(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s is a symlink", ErrUnsafeName, target)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return nil
}
