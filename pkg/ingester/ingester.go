package ingester

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"dagvault/pkg/chunker"
	"dagvault/pkg/dag"
	"dagvault/pkg/ignore"
	"dagvault/pkg/meta"
	"dagvault/pkg/multihash"
	"dagvault/pkg/storage"
	"dagvault/pkg/unixfs"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxLinks 是每个中间节点最多的子节点数
	DefaultMaxLinks = 174
	// DefaultConcurrency 是并发写入叶子块的上限
	DefaultConcurrency = 8
)

// Options 控制导入行为，零值即默认配置
type Options struct {
	Chunker     string // chunker.New 的 spec
	MaxLinks    int
	Algorithm   multihash.Algorithm
	Concurrency int
	// Ignore 是目录导入时附加的忽略规则
	Ignore []string
}

func (o Options) withDefaults() Options {
	if o.Chunker == "" {
		o.Chunker = chunker.FastCDCName
	}
	if o.MaxLinks < 2 {
		o.MaxLinks = DefaultMaxLinks
	}
	if o.Algorithm == 0 {
		o.Algorithm = multihash.DefaultAlgorithm
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Result 描述导入得到的 DAG 根
type Result struct {
	Root multihash.Multihash
	Type unixfs.DataType
	// Size 是逻辑字节数 (目录为其下所有文件之和)
	Size uint64
	// Tsize 是整个子图的序列化字节数，作为父节点 Link 的 Tsize
	Tsize uint64
	// Reused 表示命中了文件索引，没有重新切分
	Reused bool
}

func (r *Result) link(name string) dag.Link {
	return dag.NewNamedLink(name, r.Root, r.Tsize)
}

// Ingester 把文件切分成 unixfs DAG 并写入块存储
type Ingester struct {
	store storage.Store
	repo  *meta.Repository // 可选，nil 时不做秒传
	opts  Options
}

func NewIngester(store storage.Store, repo *meta.Repository, opts Options) *Ingester {
	return &Ingester{store: store, repo: repo, opts: opts.withDefaults()}
}

// layerEntry 是构建上一层时需要的子节点信息
type layerEntry struct {
	link dag.Link
	size uint64 // 逻辑字节数
}

// IngestFile 流式读取 r，切分，存储，返回文件 DAG 的根
//
// 叶子块并发写入 (最多 Concurrency 个)，Link 顺序与数据顺序一致
// 只有一个块时根就是叶子；空文件得到一个 Data 为空的叶子
func (ing *Ingester) IngestFile(ctx context.Context, r io.Reader) (*Result, error) {
	// 1. 边读边算线性哈希，用于文件索引
	linear := sha256.New()
	splitter, err := chunker.New(io.TeeReader(r, linear), ing.opts.Chunker)
	if err != nil {
		return nil, err
	}

	// 2. 切分并并发写入叶子
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.opts.Concurrency)

	var level []layerEntry
	for {
		if err := gctx.Err(); err != nil {
			break
		}
		chunk, err := splitter.NextBytes()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			g.Wait()
			return nil, fmt.Errorf("failed to read file: %w", err)
		}

		leaf := unixfs.EncodeLeaf(chunk).Node()
		id, raw := leaf.EncodeWith(ing.opts.Algorithm)
		level = append(level, layerEntry{
			link: dag.NewLink(id, uint64(len(raw))),
			size: uint64(len(chunk)),
		})
		g.Go(func() error {
			return ing.store.Put(gctx, id, raw)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to store chunk: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 空文件
	if len(level) == 0 {
		leaf := unixfs.EncodeLeaf(nil).Node()
		id, raw := leaf.EncodeWith(ing.opts.Algorithm)
		if err := ing.store.Put(ctx, id, raw); err != nil {
			return nil, fmt.Errorf("failed to store chunk: %w", err)
		}
		level = append(level, layerEntry{link: dag.NewLink(id, uint64(len(raw)))})
	}

	// 3. 逐层向上构建中间节点，直到只剩一个根
	rootSizes := []uint64{}
	for len(level) > 1 {
		var next []layerEntry
		for start := 0; start < len(level); start += ing.opts.MaxLinks {
			group := level[start:min(start+ing.opts.MaxLinks, len(level))]
			entry, sizes, err := ing.putInterior(ctx, group)
			if err != nil {
				return nil, err
			}
			next = append(next, entry)
			rootSizes = sizes
		}
		level = next
	}

	root := level[0]
	res := &Result{
		Root:  root.link.Hash,
		Type:  unixfs.TypeFile,
		Size:  root.size,
		Tsize: root.link.Tsize,
	}

	// 4. 记录文件索引
	if ing.repo != nil {
		linearHash := hex.EncodeToString(linear.Sum(nil))
		if err := ing.repo.SaveFileIndex(ctx, linearHash, res.Root, int64(res.Size), rootSizes, ing.opts.Chunker); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// putInterior 为一组子节点创建中间节点并写入
func (ing *Ingester) putInterior(ctx context.Context, group []layerEntry) (layerEntry, []uint64, error) {
	sizes := make([]uint64, len(group))
	links := make([]dag.Link, len(group))
	var total uint64
	for i, e := range group {
		sizes[i] = e.size
		links[i] = e.link
		total += e.size
	}

	node := unixfs.EncodeInterior(sizes).Node(links...)
	id, raw := node.EncodeWith(ing.opts.Algorithm)
	if err := ing.store.Put(ctx, id, raw); err != nil {
		return layerEntry{}, nil, fmt.Errorf("failed to store interior node: %w", err)
	}
	return layerEntry{
		link: dag.NewLink(id, node.CumulativeSize()),
		size: total,
	}, sizes, nil
}

// IngestPath 导入本地路径: 普通文件、目录或符号链接
func (ing *Ingester) IngestPath(ctx context.Context, path string) (*Result, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsDir():
		return ing.IngestDir(ctx, path)
	case info.Mode()&os.ModeSymlink != 0:
		return ing.ingestSymlink(ctx, path)
	case info.Mode().IsRegular():
		return ing.ingestRegular(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported file type %s: %s", info.Mode().Type(), path)
	}
}

// ingestRegular 先查文件索引，命中且根块仍然存在时直接复用
func (ing *Ingester) ingestRegular(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if ing.repo != nil {
		if res, ok := ing.lookupIndex(ctx, f); ok {
			slog.Debug("file index hit", "path", path, "root", res.Root)
			return res, nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return ing.IngestFile(ctx, f)
}

func (ing *Ingester) lookupIndex(ctx context.Context, r io.Reader) (*Result, bool) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, false
	}
	idx, err := ing.repo.GetFileIndex(ctx, hex.EncodeToString(h.Sum(nil)))
	if err != nil || idx == nil || idx.Chunker != ing.opts.Chunker {
		return nil, false
	}
	root, err := idx.RootHash()
	if err != nil {
		return nil, false
	}
	// 索引可能比块存储活得久 (比如换了存储后端)
	raw, err := ing.store.Get(ctx, root)
	if err != nil {
		return nil, false
	}
	node, err := dag.Unmarshal(raw)
	if err != nil {
		return nil, false
	}
	return &Result{
		Root:   root,
		Type:   unixfs.TypeFile,
		Size:   uint64(idx.SizeBytes),
		Tsize:  node.CumulativeSize(),
		Reused: true,
	}, true
}

func (ing *Ingester) ingestSymlink(ctx context.Context, path string) (*Result, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return nil, err
	}
	node := unixfs.NewSymlink(target).Node()
	id, raw := node.EncodeWith(ing.opts.Algorithm)
	if err := ing.store.Put(ctx, id, raw); err != nil {
		return nil, fmt.Errorf("failed to store symlink: %w", err)
	}
	return &Result{Root: id, Type: unixfs.TypeSymlink, Tsize: uint64(len(raw))}, nil
}

// IngestDir 递归导入目录
// 目录项是带名字的 Link，按名字排序；匹配 .dvignore / 默认规则的路径被跳过
func (ing *Ingester) IngestDir(ctx context.Context, dir string) (*Result, error) {
	matcher, err := ignore.NewMatcher(dir, ing.opts.Ignore...)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	return ing.ingestDir(ctx, dir, "", matcher)
}

func (ing *Ingester) ingestDir(ctx context.Context, abs, rel string, matcher *ignore.Matcher) (*Result, error) {
	// os.ReadDir 已经按文件名排序
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	node := unixfs.NewDirectory().Node()
	var size uint64
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		childRel := filepath.Join(rel, e.Name())
		if matcher.Matches(childRel) {
			continue
		}

		childAbs := filepath.Join(abs, e.Name())
		var child *Result
		if e.IsDir() {
			child, err = ing.ingestDir(ctx, childAbs, childRel, matcher)
		} else {
			child, err = ing.IngestPath(ctx, childAbs)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", childRel, err)
		}
		node.AddLink(child.link(e.Name()))
		size += child.Size
	}

	id, raw := node.EncodeWith(ing.opts.Algorithm)
	if err := ing.store.Put(ctx, id, raw); err != nil {
		return nil, fmt.Errorf("failed to store directory: %w", err)
	}
	return &Result{
		Root:  id,
		Type:  unixfs.TypeDirectory,
		Size:  size,
		Tsize: node.CumulativeSize(),
	}, nil
}
