package exporter

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"dagvault/pkg/dag"
	"dagvault/pkg/ingester"
	"dagvault/pkg/multihash"
	"dagvault/pkg/storage"
	"dagvault/pkg/storage/disk"
	"dagvault/pkg/unixfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *disk.Adapter {
	t.Helper()
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	return store
}

// putNode 写入节点并返回指向它的 Link
func putNode(t *testing.T, store storage.Store, n *dag.Node) dag.Link {
	t.Helper()
	id, raw := n.Encode()
	require.NoError(t, store.Put(context.Background(), id, raw))
	return dag.NewLink(id, n.CumulativeSize())
}

func TestIngestAndExport_RoundTrip(t *testing.T) {
	store := newStore(t)
	ing := ingester.NewIngester(store, nil, ingester.Options{Chunker: "size-4096"})
	exp := NewExporter(store)
	ctx := context.Background()

	// 500KB 随机数据，足以切成多层
	originalData := make([]byte, 500*1024)
	_, err := rand.Read(originalData)
	require.NoError(t, err)

	res, err := ing.IngestFile(ctx, bytes.NewReader(originalData))
	require.NoError(t, err)

	var restored bytes.Buffer
	require.NoError(t, exp.ExportFile(ctx, res.Root, &restored))
	assert.Equal(t, len(originalData), restored.Len(), "文件大小应该一致")
	if !bytes.Equal(originalData, restored.Bytes()) {
		t.Fatal("❌ FAILURE: Data Mismatch!")
	}
}

func TestExportFile_HelloWorld(t *testing.T) {
	store := newStore(t)
	exp := NewExporter(store)

	hello := putNode(t, store, unixfs.EncodeLeaf([]byte("hello ")).Node())
	world := putNode(t, store, unixfs.EncodeLeaf([]byte("world")).Node())
	root := putNode(t, store, unixfs.EncodeInterior([]uint64{6, 5}).Node(hello, world))

	var buf bytes.Buffer
	require.NoError(t, exp.ExportFile(context.Background(), root.Hash, &buf))
	assert.Equal(t, "hello world", buf.String())
}

func TestExportFile_Missing(t *testing.T) {
	exp := NewExporter(newStore(t))
	var buf bytes.Buffer
	err := exp.ExportFile(context.Background(), multihash.Sum(multihash.SHA2_256, []byte("nope")), &buf)
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)
}

func TestRestore_Tree(t *testing.T) {
	store := newStore(t)
	exp := NewExporter(store)
	ctx := context.Background()

	// 1. 构造一个小目录: a.txt, sub/b.txt, link -> a.txt
	a := putNode(t, store, unixfs.EncodeLeaf([]byte("alpha")).Node())
	b := putNode(t, store, unixfs.EncodeLeaf([]byte("bravo")).Node())
	link := putNode(t, store, unixfs.NewSymlink("a.txt").Node())

	sub := unixfs.NewDirectory().Node()
	sub.AddLink(dag.NewNamedLink("b.txt", b.Hash, b.Tsize))
	subLink := putNode(t, store, sub)

	root := unixfs.NewDirectory().Node()
	root.AddLink(dag.NewNamedLink("a.txt", a.Hash, a.Tsize))
	root.AddLink(dag.NewNamedLink("link", link.Hash, link.Tsize))
	root.AddLink(dag.NewNamedLink("sub", subLink.Hash, subLink.Tsize))
	rootLink := putNode(t, store, root)

	// 2. 还原
	target := filepath.Join(t.TempDir(), "out")
	restored := map[string]uint64{}
	err := exp.Restore(ctx, rootLink.Hash, target, func(path string, hash multihash.Multihash, size uint64) {
		rel, _ := filepath.Rel(target, path)
		restored[rel] = size
	})
	require.NoError(t, err)

	// 3. 验证
	got, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))

	got, err = os.ReadFile(filepath.Join(target, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(got))

	dest, err := os.Readlink(filepath.Join(target, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", dest)

	assert.Equal(t, map[string]uint64{"a.txt": 5, "link": 0, filepath.Join("sub", "b.txt"): 5}, restored)
}

func TestRestore_RejectsUnsafeNames(t *testing.T) {
	store := newStore(t)
	exp := NewExporter(store)

	evil := putNode(t, store, unixfs.EncodeLeaf([]byte("pwned")).Node())
	root := unixfs.NewDirectory().Node()
	root.AddLink(dag.NewNamedLink("../escape", evil.Hash, evil.Tsize))
	rootLink := putNode(t, store, root)

	err := exp.Restore(context.Background(), rootLink.Hash, t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrUnsafeName)
}

func TestRestore_SymlinkThenSameNameDirStaysInside(t *testing.T) {
	store := newStore(t)
	exp := NewExporter(store)
	outside := t.TempDir()

	// 同名的两项: 先是指向外部的符号链接，再是一个目录
	link := putNode(t, store, unixfs.NewSymlink(outside).Node())
	leaf := putNode(t, store, unixfs.EncodeLeaf([]byte("pwned")).Node())
	sub := unixfs.NewDirectory().Node()
	sub.AddLink(dag.NewNamedLink("escaped.txt", leaf.Hash, leaf.Tsize))
	subLink := putNode(t, store, sub)

	root := unixfs.NewDirectory().Node()
	root.AddLink(dag.NewNamedLink("a", link.Hash, link.Tsize))
	root.AddLink(dag.NewNamedLink("a", subLink.Hash, subLink.Tsize))
	rootLink := putNode(t, store, root)

	target := filepath.Join(t.TempDir(), "restored")
	err := exp.Restore(context.Background(), rootLink.Hash, target, nil)
	assert.ErrorIs(t, err, ErrUnsafeName)
	assert.NoFileExists(t, filepath.Join(outside, "escaped.txt"))
}

func TestRestore_RefusesExistingSymlinkTarget(t *testing.T) {
	store := newStore(t)
	exp := NewExporter(store)
	leaf := putNode(t, store, unixfs.EncodeLeaf([]byte("pwned")).Node())

	dir := t.TempDir()
	victim := filepath.Join(t.TempDir(), "victim.txt")
	require.NoError(t, os.WriteFile(victim, []byte("keep"), 0644))
	target := filepath.Join(dir, "file.txt")
	require.NoError(t, os.Symlink(victim, target))

	err := exp.Restore(context.Background(), leaf.Hash, target, nil)
	assert.ErrorIs(t, err, ErrUnsafeName)

	got, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got))
}

func TestRestore_SingleFile(t *testing.T) {
	store := newStore(t)
	exp := NewExporter(store)
	leaf := putNode(t, store, unixfs.EncodeLeaf([]byte("just a file")).Node())

	target := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, exp.Restore(context.Background(), leaf.Hash, target, nil))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "just a file", string(got))
}

func TestDescribe_And_Print(t *testing.T) {
	store := newStore(t)
	exp := NewExporter(store)
	ctx := context.Background()

	hello := putNode(t, store, unixfs.EncodeLeaf([]byte("hello ")).Node())
	world := putNode(t, store, unixfs.EncodeLeaf([]byte("world")).Node())
	rootNode := unixfs.EncodeInterior([]uint64{6, 5}).Node(hello, world)
	root := putNode(t, store, rootNode)

	// Case 1: Describe
	s, err := exp.Describe(ctx, root.Hash)
	require.NoError(t, err)
	assert.Equal(t, root.Hash.String(), s.Hash)
	assert.Equal(t, "file", s.Type)
	require.NotNil(t, s.FileSize)
	assert.Equal(t, uint64(11), *s.FileSize)
	assert.Equal(t, []uint64{6, 5}, s.BlockSizes)
	require.Len(t, s.Links, 2)
	assert.Equal(t, hello.Hash.String(), s.Links[0].Hash)
	assert.Equal(t, rootNode.CumulativeSize(), s.CumulativeSize)

	_, raw := rootNode.Encode()
	assert.Equal(t, len(raw), s.BlockSize)
	assert.Equal(t, multihash.Sum(multihash.SHA2_512, raw).String(), s.Rehash)

	// Case 2: Print
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(s, &buf))
	assert.Contains(t, buf.String(), "Type:       file")
	assert.Contains(t, buf.String(), hello.Hash.String())
	assert.Contains(t, buf.String(), "11B")

	// Case 3: CBOR 编码是确定性的，并且可以解回来
	enc1, err := EncodeSummary(s)
	require.NoError(t, err)
	enc2, err := EncodeSummary(s)
	require.NoError(t, err)
	assert.Equal(t, enc1, enc2)

	back, err := DecodeSummary(enc1)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestDescribe_OpaqueNode(t *testing.T) {
	store := newStore(t)
	exp := NewExporter(store)

	// Data 不是 unixfs payload 的普通 DAG 节点
	link := putNode(t, store, dag.NewNode([]byte{0xff, 0xff}))

	s, err := exp.Describe(context.Background(), link.Hash)
	require.NoError(t, err)
	assert.Equal(t, "opaque", s.Type)
	assert.Equal(t, 2, s.DataLen)
	assert.Nil(t, s.FileSize)
}
