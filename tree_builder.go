package archivekit

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RootID 根节点的ID
const RootID = "root"

// Node 目录树中的节点：目录(*TreeNode、*RootNode)或文件(*FileLeaf)
type Node interface {
	// ID 规范化后的完整路径，根节点为"root"
	ID() string

	// Name 显示名称（最后一段路径）
	Name() string

	// Equal 两个节点ID相同即相等
	Equal(other Node) bool
}

// TreeNode 目录节点
type TreeNode struct {
	id       string
	name     string
	children sync.Map // 子节点ID -> Node
	count    atomic.Int64
}

// ID 返回节点ID
func (n *TreeNode) ID() string { return n.id }

// Name 返回目录名称
func (n *TreeNode) Name() string { return n.name }

// Equal 按ID比较
func (n *TreeNode) Equal(other Node) bool {
	return other != nil && n.id == other.ID()
}

// Children 返回子节点，按ID排序
func (n *TreeNode) Children() []Node {
	var nodes []Node
	n.children.Range(func(_, v any) bool {
		nodes = append(nodes, v.(Node))
		return true
	})
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID() < nodes[j].ID()
	})
	return nodes
}

// Child 按ID查找直接子节点
func (n *TreeNode) Child(id string) (Node, bool) {
	v, ok := n.children.Load(id)
	if !ok {
		return nil, false
	}
	return v.(Node), true
}

// Len 直接子节点数量
func (n *TreeNode) Len() int {
	return int(n.count.Load())
}

func (n *TreeNode) addChild(child Node) {
	if _, loaded := n.children.Swap(child.ID(), child); !loaded {
		n.count.Add(1)
	}
}

// FileLeaf 文件节点
type FileLeaf struct {
	id       string
	name     string
	Size     uint64
	Modified time.Time

	// IsArchive 文件本身是否为可识别的压缩包，可以继续浏览
	IsArchive bool
}

// ID 返回节点ID
func (l *FileLeaf) ID() string { return l.id }

// Name 返回文件名
func (l *FileLeaf) Name() string { return l.name }

// Equal 按ID比较
func (l *FileLeaf) Equal(other Node) bool {
	return other != nil && l.id == other.ID()
}

// Extension 文件扩展名（复合扩展名如".tar.gz"整体返回），没有时为空
func (l *FileLeaf) Extension() string {
	_, ext := SplitExtension(l.name)
	return ext
}

// RootNode 根节点，持有压缩包路径和密码
type RootNode struct {
	TreeNode

	ArchivePath string
	ArchiveType ArchiveType
	Password    string
}

// TreeBuilder 把条目序列构建成目录树
//
// 所有节点保存在一个ID到节点的表中，同一路径最多只有一个节点。
// 目录条目本身被跳过，目录只作为文件的父节点推导出来。
type TreeBuilder struct {
	root     *RootNode
	nodes    sync.Map // ID -> Node，不含根节点
	leaves   atomic.Int64
	disposed atomic.Bool
	stop     func() bool
}

// NewTreeBuilder 创建树构建器；ctx取消后构建器失效
func NewTreeBuilder(ctx context.Context, archivePath string, t ArchiveType, password string) *TreeBuilder {
	b := &TreeBuilder{
		root: &RootNode{
			TreeNode:    TreeNode{id: RootID, name: archiveDisplayName(archivePath)},
			ArchivePath: archivePath,
			ArchiveType: t,
			Password:    password,
		},
	}
	b.stop = context.AfterFunc(ctx, b.Dispose)
	return b
}

// Root 返回根节点
func (b *TreeBuilder) Root() *RootNode {
	return b.root
}

// Lookup 按ID查找节点
func (b *TreeBuilder) Lookup(id string) (Node, bool) {
	if id == RootID {
		return b.root, true
	}
	v, ok := b.nodes.Load(id)
	if !ok {
		return nil, false
	}
	return v.(Node), true
}

// LeafCount 已添加的文件数量
func (b *TreeBuilder) LeafCount() int {
	return int(b.leaves.Load())
}

// Dispose 使构建器失效，之后的Add都会失败
func (b *TreeBuilder) Dispose() {
	b.disposed.Store(true)
}

// Close 释放取消监听
func (b *TreeBuilder) Close() {
	if b.stop != nil {
		b.stop()
	}
}

// Add 添加一个条目：沿路径逐段创建或复用目录节点，再把文件挂到最后的父目录下
func (b *TreeBuilder) Add(entry *ArchiveEntry) error {
	if b.disposed.Load() {
		return NewArchiveError(ErrReaderDisposed, "目录树构建已取消", b.root.ArchivePath, nil)
	}
	if entry == nil || entry.IsDirectory || entry.Key == "" {
		return nil
	}

	key := normalizeKey(entry.Key)
	if key == "" || strings.HasSuffix(key, "/") {
		return nil
	}

	last := strings.LastIndex(key, "/")
	expectedParent := parentKey(key)

	parent := &b.root.TreeNode
	start := 0
	for i := 0; i <= last; i++ {
		if key[i] != '/' {
			continue
		}
		segment := key[start:i]
		start = i + 1
		if !validSegment(segment) {
			return b.malformed(entry.Key, fmt.Sprintf("无效的路径段 %q", segment))
		}

		dir, err := b.resolveDir(key[:i], segment)
		if err != nil {
			return err
		}
		parent.addChild(dir)
		parent = dir
	}

	if parent.id != expectedParent {
		return b.malformed(entry.Key, fmt.Sprintf("父节点不一致: %s != %s", parent.id, expectedParent))
	}

	name := key[last+1:]
	if !validSegment(name) {
		return b.malformed(entry.Key, fmt.Sprintf("无效的文件名 %q", name))
	}

	leaf := &FileLeaf{
		id:        key,
		name:      name,
		Size:      entry.Size,
		Modified:  entry.Modified,
		IsArchive: Resolve(name) != TypeUnknown,
	}
	previous, loaded := b.nodes.Swap(key, leaf)
	if loaded {
		if _, isDir := previous.(*TreeNode); isDir {
			// 目录被同名文件覆盖会让已挂上的子节点失联
			b.nodes.Store(key, previous)
			return b.malformed(entry.Key, "文件与目录同名")
		}
	} else {
		b.leaves.Add(1)
	}
	parent.addChild(leaf)
	return nil
}

// resolveDir 查找或创建目录节点
func (b *TreeBuilder) resolveDir(id, name string) (*TreeNode, error) {
	v, _ := b.nodes.LoadOrStore(id, &TreeNode{id: id, name: name})
	dir, ok := v.(*TreeNode)
	if !ok {
		return nil, b.malformed(id, "路径前缀是文件而不是目录")
	}
	return dir, nil
}

func (b *TreeBuilder) malformed(key, reason string) error {
	return NewArchiveError(ErrReadingArchive, "压缩包结构错误: "+reason, key, nil)
}

// BuildTree 读取全部条目并构建目录树
func BuildTree(ctx context.Context, reader ArchiveReader, archivePath string, t ArchiveType, password string) (*RootNode, error) {
	builder := NewTreeBuilder(ctx, archivePath, t, password)
	defer builder.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if err := builder.Add(entry); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
	}
	return builder.Root(), nil
}

// normalizeKey 统一分隔符，去掉开头的"./"和"/"，合并重复的"/"
func normalizeKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	for {
		switch {
		case strings.HasPrefix(key, "./"):
			key = key[2:]
		case strings.HasPrefix(key, "/"):
			key = key[1:]
		default:
			return key
		}
	}
}

// parentKey 父节点ID：截掉最后一段，顶层条目的父节点是根
func parentKey(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i]
	}
	return RootID
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".."
}

// archiveDisplayName 根节点显示名称
func archiveDisplayName(archivePath string) string {
	slashed := strings.ReplaceAll(archivePath, "\\", "/")
	if i := strings.LastIndex(slashed, "/"); i >= 0 {
		return slashed[i+1:]
	}
	return slashed
}
