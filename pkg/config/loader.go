package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// RepoDirName 是默认仓库目录名 ($HOME/.dagvault)
const RepoDirName = ".dagvault"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 默认值
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		// 搜索顺序: 当前目录 -> ./.dv -> ~/.dv
		viper.AddConfigPath(".")
		viper.AddConfigPath(".dv")
		viper.AddConfigPath(filepath.Join(home, ".dv"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 3. 环境变量: repo.path -> DV_REPO_PATH
	viper.SetEnvPrefix("DV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件，找不到不算错
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		// stdout 留给 cat 之类的数据输出
		fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("repo.path", DefaultRoot())

	// 存储
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.s3.region", "us-east-1")

	// 缓存 (redis_url 为空表示不启用)
	viper.SetDefault("cache.ttl", "24h")

	// 元数据库
	viper.SetDefault("meta.driver", "none")
	viper.SetDefault("meta.port", 5432)
	viper.SetDefault("meta.sslmode", "disable")

	// 导入
	viper.SetDefault("import.chunker", "fastcdc")
	viper.SetDefault("import.max_links", 174)
	viper.SetDefault("hash.algorithm", "sha2-256")
}

// DefaultRoot 返回平台默认的仓库根目录
// 优先兼容 IPFS_PATH，否则为 $HOME/.dagvault
func DefaultRoot() string {
	if p := os.Getenv("IPFS_PATH"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return RepoDirName
	}
	return filepath.Join(home, RepoDirName)
}

// ResolveRoot 返回显式指定的根目录，否则取配置 (DV_REPO_PATH / config.yaml)，最后是平台默认值
func ResolveRoot(override string) string {
	if override != "" {
		return override
	}
	if p := viper.GetString("repo.path"); p != "" {
		return p
	}
	return DefaultRoot()
}
