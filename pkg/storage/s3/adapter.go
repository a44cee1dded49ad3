package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"dagvault/pkg/multihash"
	"dagvault/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	keyRoot  = "blocks"
	blockExt = ".data"
)

// Adapter 实现了 storage.Store 接口，块保存在对象存储 (S3 / MinIO) 中
type Adapter struct {
	client *s3.Client
	bucket string
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewAdapter 初始化 S3 客户端
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	// 1. 加载基础配置 (Region 和 Credentials)
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. Endpoint 走 S3 专属的 BaseEndpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须使用 Path Style: http://host:9000/bucket/key
		o.UsePathStyle = true
	})

	// 3. 确保 Bucket 存在
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket}); err != nil {
		if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &cfg.Bucket}); err != nil {
			slog.Warn("failed to ensure bucket exists", "bucket", cfg.Bucket, "error", err)
		}
	}

	return &Adapter{client: client, bucket: cfg.Bucket}, nil
}

// ObjectKey 与磁盘布局保持一致: "blocks/<hex 前 8 位>/<hex>.data"
func ObjectKey(hash multihash.Multihash) string {
	hex := hash.Hex()
	shard := hex
	if len(hex) > multihash.MinPrefixLen {
		shard = hex[:multihash.MinPrefixLen]
	}
	return path.Join(keyRoot, shard, hex+blockExt)
}

// hashFromKey 是 ObjectKey 的逆运算
func hashFromKey(key string) (multihash.Multihash, error) {
	name := path.Base(key)
	if !strings.HasSuffix(name, blockExt) {
		return multihash.Multihash{}, fmt.Errorf("unexpected object key %q", key)
	}
	return multihash.FromHex(strings.TrimSuffix(name, blockExt))
}

// Put 上传块
func (s *Adapter) Put(ctx context.Context, hash multihash.Multihash, data []byte) error {
	// 1. 幂等性检查: Head 比 Put 便宜，已存在直接跳过
	exists, err := s.Has(ctx, hash)
	if err != nil {
		return fmt.Errorf("s3 put existence check failed: %w", err)
	}
	if exists {
		return nil
	}

	// 2. 执行上传
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(hash)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/vnd.ipld.dag-pb"),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 put %s: %v", storage.ErrIOFailure, hash, err)
	}
	return nil
}

// Get 下载块
func (s *Adapter) Get(ctx context.Context, hash multihash.Multihash) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(hash)),
	})
	if err != nil {
		// NoSuchKey 映射为 ErrBlockNotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", storage.ErrBlockNotFound, hash)
		}
		return nil, fmt.Errorf("%w: s3 get %s: %v", storage.ErrIOFailure, hash, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3 read %s: %v", storage.ErrIOFailure, hash, err)
	}
	return data, nil
}

// Has 检查块是否存在
func (s *Adapter) Has(ctx context.Context, hash multihash.Multihash) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(hash)),
	})
	if err == nil {
		return true, nil
	}

	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return false, nil
	}
	// 某些 S3 实现只返回 generic 404
	if strings.Contains(err.Error(), "404") {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", storage.ErrIOFailure, err)
}

// ExpandHash 利用 ListObjectsV2 的 Prefix 查询扩展短哈希
func (s *Adapter) ExpandHash(ctx context.Context, prefix multihash.Prefix) (multihash.Multihash, error) {
	keyPrefix := path.Join(keyRoot, prefix.Shard(), prefix.String())

	// MaxKeys=2: 只需要区分 0 个、唯一、歧义
	resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(keyPrefix),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return multihash.Multihash{}, fmt.Errorf("%w: s3 list: %v", storage.ErrIOFailure, err)
	}

	switch len(resp.Contents) {
	case 0:
		return multihash.Multihash{}, fmt.Errorf("%w: prefix %s", storage.ErrBlockNotFound, prefix)
	case 1:
		return hashFromKey(aws.ToString(resp.Contents[0].Key))
	default:
		return multihash.Multihash{}, fmt.Errorf("%w: %s", storage.ErrAmbiguousHash, prefix)
	}
}
