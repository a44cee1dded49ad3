package unixfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"dagvault/pkg/dag"
)

// ErrNotAFile 表示试图把目录 / symlink 等节点当作文件重组
var ErrNotAFile = errors.New("node is not a file")

// Reconstruct 以 root 为根，按 Link 顺序深度优先遍历，依次产出每个节点的内联数据
//
// 返回的序列是惰性的: 只有消费到某个子节点时才会通过 Handle.Load 读取它
// 序列可以重复 range (每次都从 root 重新开始)；调用方停止 range 即可中断遍历
// 任何加载或解码错误都会作为最后一个元素产出，不做重试
func Reconstruct(ctx context.Context, root *dag.Handle, getter dag.BlockGetter) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		var walk func(h *dag.Handle) bool
		walk = func(h *dag.Handle) bool {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return false
			}
			if err := h.Load(ctx, getter); err != nil {
				yield(nil, err)
				return false
			}

			p, err := Decode(h.Node())
			if err != nil {
				yield(nil, fmt.Errorf("decode %s: %w", h.ID(), err))
				return false
			}
			if !p.Type.IsFileLike() {
				yield(nil, fmt.Errorf("%w: %s is a %s", ErrNotAFile, h.ID(), p.Type))
				return false
			}

			if len(p.Data) > 0 {
				if !yield(p.Data, nil) {
					return false
				}
			}
			for _, child := range h.Children() {
				if !walk(child) {
					return false
				}
			}
			return true
		}
		walk(root)
	}
}

// reader 把 Reconstruct 的序列适配成 io.ReadCloser
type reader struct {
	next    func() ([]byte, error, bool)
	stop    func()
	pending []byte
	err     error
}

// NewReader 返回一个按需拉取数据块的 io.ReadCloser
// 用完必须 Close，以释放底层的遍历
func NewReader(ctx context.Context, root *dag.Handle, getter dag.BlockGetter) io.ReadCloser {
	next, stop := iter.Pull2(Reconstruct(ctx, root, getter))
	return &reader{next: next, stop: stop}
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		chunk, err, ok := r.next()
		if !ok {
			r.err = io.EOF
			continue
		}
		if err != nil {
			r.err = err
			continue
		}
		r.pending = chunk
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *reader) Close() error {
	r.stop()
	return nil
}

// ReadAll 一次性重组整个文件 (小文件 / 测试用)
func ReadAll(ctx context.Context, root *dag.Handle, getter dag.BlockGetter) ([]byte, error) {
	var out []byte
	for chunk, err := range Reconstruct(ctx, root, getter) {
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}
