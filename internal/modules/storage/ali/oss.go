package ali

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/modules/cache"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/tools"
)

type Client struct {
	client        *oss.Client
	bucketName    string
	directory     string
	publicBaseURL string
	expires       time.Duration
	urlCache      *cache.Manager[string]
}

func NewClient(config config.AliOss, expires time.Duration) *Client {
	credential := credentials.NewStaticCredentialsProvider(config.AccessKeyId, config.AccessKeySecret, "")
	cfg := oss.LoadDefaultConfig().
		WithCredentialsProvider(credential).
		WithEndpoint(config.Endpoint).WithRegion(config.Region)
	client := oss.NewClient(cfg)
	if client == nil {
		panic("create oss client failed")
	}
	if expires <= 0 {
		expires = time.Hour
	}
	return &Client{
		client:        client,
		bucketName:    config.Bucket,
		directory:     config.Directory,
		publicBaseURL: config.PublicBaseURL,
		expires:       expires,
		urlCache:      cache.URLCacheManager(),
	}
}

func (o *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	fullKey := o.fullPath(key)
	request := &oss.PutObjectRequest{
		Bucket:             oss.Ptr(o.bucketName),
		Key:                oss.Ptr(fullKey),
		Body:               bytes.NewReader(data),
		ContentType:        oss.Ptr(contentType),
		ContentDisposition: oss.Ptr(fmt.Sprintf("inline; filename=\"%s\"", path.Base(key))),
	}
	_, err := o.client.PutObject(ctx, request)
	if err != nil {
		return err
	}
	// an overwritten object keeps its key, only the cached signature is stale
	if err := o.urlCache.Delete(o.cacheKey(fullKey)); err != nil {
		logs.Logger.Warn().Err(err).Str("key", fullKey).Msg("drop cached url")
	}
	return nil
}

// URL returns a public URL when a public base is configured, otherwise a
// presigned GET URL cached for most of its lifetime.
func (o *Client) URL(ctx context.Context, key string) (string, error) {
	fullKey := o.fullPath(key)
	if o.publicBaseURL != "" {
		return tools.FullURL(o.publicBaseURL, fullKey), nil
	}
	if cached, err := o.urlCache.GetValue(o.cacheKey(fullKey)); err == nil && cached != "" {
		return cached, nil
	}
	ret, err := o.client.Presign(ctx, &oss.GetObjectRequest{Bucket: oss.Ptr(o.bucketName), Key: oss.Ptr(fullKey)}, oss.PresignExpires(o.expires))
	if err != nil {
		return "", err
	}
	if err := o.urlCache.SetWithExpiration(o.cacheKey(fullKey), ret.URL, o.expires*9/10); err != nil {
		logs.Logger.Warn().Err(err).Str("key", fullKey).Msg("cache presigned url")
	}
	return ret.URL, nil
}

func (o *Client) fullPath(key string) string {
	if o.directory == "" {
		return key
	}
	return path.Join(o.directory, key)
}

func (o *Client) cacheKey(fullKey string) string {
	return "oss:" + o.bucketName + "/" + fullKey
}
