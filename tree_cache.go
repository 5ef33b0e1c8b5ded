package archivekit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// TreeCache 目录树缓存：按压缩包路径、大小、修改时间和密码指纹作为键，容量有限并定期过期
type TreeCache struct {
	lru   *expirable.LRU[string, *RootNode]
	group singleflight.Group
	opts  Options
	load  func(ctx context.Context, archivePath, password string) (*RootNode, error)
}

// NewTreeCache 创建目录树缓存
func NewTreeCache(size int, ttl time.Duration, opts Options) *TreeCache {
	if size <= 0 {
		size = 16
	}
	c := &TreeCache{
		lru:  expirable.NewLRU[string, *RootNode](size, nil, ttl),
		opts: opts.withDefaults(),
	}
	c.load = func(ctx context.Context, archivePath, password string) (*RootNode, error) {
		return LoadArchiveTree(ctx, archivePath, password, c.opts)
	}
	return c
}

// Get 返回压缩包的目录树，不在缓存中时构建；同一压缩包的并发请求只构建一次，
// 构建不受某个调用者取消的影响，每个调用者只等待自己的ctx
func (c *TreeCache) Get(ctx context.Context, archivePath, password string) (*RootNode, error) {
	key, err := c.key(archivePath, password)
	if err != nil {
		return nil, err
	}

	if root, ok := c.lru.Get(key); ok {
		return root, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		root, err := c.load(context.WithoutCancel(ctx), archivePath, password)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, root)
		return root, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*RootNode), nil
	}
}

// Invalidate 移除某个压缩包的缓存（所有密码）
func (c *TreeCache) Invalidate(archivePath string) {
	prefix := archivePath + "|"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Purge 清空缓存
func (c *TreeCache) Purge() {
	c.lru.Purge()
}

// Len 缓存中的目录树数量
func (c *TreeCache) Len() int {
	return c.lru.Len()
}

// key 压缩包被修改后键随之变化，旧的目录树自然失效；不同密码各自缓存
func (c *TreeCache) key(archivePath, password string) (string, error) {
	info, err := c.opts.Fs.Stat(archivePath)
	if err != nil {
		return "", ClassifyError(err, KindReading, archivePath)
	}
	sum := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%s|%d|%d|%s", archivePath, info.Size(), info.ModTime().UnixNano(), hex.EncodeToString(sum[:8])), nil
}
