package ignore

import (
	"errors"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是目录导入时读取的忽略规则文件，放在被导入目录的根上
const FileName = ".dvignore"

// DefaultRules 在任何导入中都生效
var DefaultRules = []string{
	// 仓库目录，导入仓库自身会无限递归
	".dagvault",
	".dv",
	".git",

	// 凭据
	"config.yaml",
	".env",

	".DS_Store", // macOS
	"Thumbs.db", // Windows
}

// Matcher 判断一个路径在目录导入时是否应该跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 编译 默认规则 + dir/.dvignore (如果存在) + extra
// extra 通常来自命令行的 --ignore 参数
func NewMatcher(dir string, extra ...string) (*Matcher, error) {
	lines := make([]string, 0, len(DefaultRules)+len(extra))
	lines = append(lines, DefaultRules...)
	lines = append(lines, extra...)

	ignoreFilePath := filepath.Join(dir, FileName)
	_, err := os.Stat(ignoreFilePath)
	switch {
	case err == nil:
		ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFilePath, lines...)
		if err != nil {
			return nil, err
		}
		return &Matcher{ignorer: ignorer}, nil
	case errors.Is(err, os.ErrNotExist):
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(lines...)}, nil
	default:
		return nil, err
	}
}

// Matches 检查相对于导入根目录的路径 (例如 "data/model.bin")
// true 表示跳过
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(filepath.ToSlash(path))
}
