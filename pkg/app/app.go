package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"dagvault/pkg/config"
	"dagvault/pkg/exporter"
	"dagvault/pkg/ingester"
	"dagvault/pkg/meta"
	"dagvault/pkg/multihash"
	"dagvault/pkg/storage"
	"dagvault/pkg/storage/cache"
	"dagvault/pkg/storage/disk"
	"dagvault/pkg/storage/s3"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器，持有所有"单例"服务
type App struct {
	RepoPath string
	Store    storage.Store
	// Repository 为 nil 表示没有启用元数据库
	Repository *meta.Repository
	Ingester   *ingester.Ingester
	Exporter   *exporter.Exporter
	Algorithm  multihash.Algorithm
	// ImportOptions 是按配置组装的导入参数，命令行可以在此基础上覆盖
	ImportOptions ingester.Options

	closers []func() error
}

// NewApp 按 Viper 配置组装所有组件
// repoOverride 非空时覆盖配置里的仓库路径 (--repo)
func NewApp(ctx context.Context, repoOverride string) (*App, error) {
	// 1. 仓库根路径
	repoPath := config.ResolveRoot(repoOverride)

	a := &App{RepoPath: repoPath}

	// 2. 存储层
	store, err := initStore(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	a.Store = store

	// 3. 可选的 Redis 存在性缓存
	if url := viper.GetString("cache.redis_url"); url != "" {
		cached, err := cache.NewCachedStore(store, cache.Config{
			RedisURL: url,
			TTL:      viper.GetDuration("cache.ttl"),
		})
		if err != nil {
			return nil, err
		}
		a.Store = cached
		a.closers = append(a.closers, cached.Close)
	}

	// 4. 可选的元数据库
	db, err := initMeta(ctx, repoPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init meta: %w", err)
	}
	if db != nil {
		a.Repository = meta.NewRepository(db)
		a.closers = append(a.closers, db.Close)
	}

	// 5. 导入 / 导出
	alg, err := multihash.ParseAlgorithm(viper.GetString("hash.algorithm"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Algorithm = alg
	a.ImportOptions = ingester.Options{
		Chunker:   viper.GetString("import.chunker"),
		MaxLinks:  viper.GetInt("import.max_links"),
		Algorithm: alg,
	}
	a.Ingester = ingester.NewIngester(a.Store, a.Repository, a.ImportOptions)
	a.Exporter = exporter.NewExporter(a.Store)

	slog.Debug("app ready", "repo", repoPath, "storage", viper.GetString("storage.type"), "meta", viper.GetString("meta.driver"))
	return a, nil
}

// initStore 根据 storage.type 创建块存储
func initStore(ctx context.Context, repoPath string) (storage.Store, error) {
	switch storeType := viper.GetString("storage.type"); storeType {
	case "", "disk":
		return disk.NewAdapter(repoPath)
	case "s3":
		cfg := s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
		}
		if cfg.Bucket == "" {
			return nil, errors.New("s3 bucket is required (storage.s3.bucket)")
		}
		return s3.NewAdapter(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storeType)
	}
}

// initMeta 根据 meta.driver 打开元数据库，"none" 返回 nil
func initMeta(ctx context.Context, repoPath string) (*meta.DB, error) {
	driver := viper.GetString("meta.driver")
	switch driver {
	case "", "none":
		return nil, nil
	case meta.DriverSQLite:
		dsn := viper.GetString("meta.dsn")
		if dsn == "" {
			dsn = filepath.Join(repoPath, "meta.db")
		}
		return meta.NewDB(ctx, meta.Config{Driver: driver, DSN: dsn})
	case meta.DriverPostgres:
		return meta.NewDB(ctx, meta.Config{
			Driver:   driver,
			DSN:      viper.GetString("meta.dsn"),
			Host:     viper.GetString("meta.host"),
			Port:     viper.GetInt("meta.port"),
			User:     viper.GetString("meta.user"),
			Password: viper.GetString("meta.password"),
			DBName:   viper.GetString("meta.dbname"),
			SSLMode:  viper.GetString("meta.sslmode"),
		})
	default:
		return nil, fmt.Errorf("unsupported meta driver: %s", driver)
	}
}

// Close 释放 Redis / 数据库连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ResolveHash 把用户输入解析成完整哈希
// 支持完整的 hex / base58，以及至少 8 位的 hex 短哈希
func (a *App) ResolveHash(ctx context.Context, input string) (multihash.Multihash, error) {
	if mh, err := multihash.Parse(input); err == nil {
		return mh, nil
	}
	prefix, err := multihash.ParsePrefix(input)
	if err != nil {
		return multihash.Multihash{}, err
	}
	return a.Store.ExpandHash(ctx, prefix)
}
