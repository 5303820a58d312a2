package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/pixhub/pixcache/internal/metrics"
)

const (
	tempFilePrefix = ".tmp-"

	// DefaultTempGracePeriod 是临时文件被视为遗弃前的最短存活时间。
	DefaultTempGracePeriod = time.Hour
)

// Options 控制 FileStore 的构建参数，除 Root 外均可省略。
type Options struct {
	Root        string
	RoutePrefix string
	Index       Index
	Clock       clock.Clock
	Logger      *logrus.Logger
	Metrics     *metrics.Collector
	// TempGracePeriod 之内的临时文件不会被 Cleanup 回收。
	TempGracePeriod time.Duration
	// Ephemeral 为 true 时 Close 会删除整个缓存目录。
	Ephemeral bool
}

// FileStore 以单一扁平目录保存图片，索引只存在于内存。
type FileStore struct {
	root      string
	prefix    string
	index     Index
	hasher    Hasher
	clock     clock.Clock
	logger    *logrus.Logger
	metrics   *metrics.Collector
	tempGrace time.Duration
	ephemeral bool

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

var _ Store = (*FileStore)(nil)

// NewStore 以 opts.Root 为根目录构建磁盘缓存，并从目录内容重建索引。
func NewStore(ctx context.Context, opts Options) (*FileStore, error) {
	if opts.Root == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	s := &FileStore{
		root:      abs,
		prefix:    NormalizePrefix(opts.RoutePrefix),
		index:     opts.Index,
		hasher:    NewHasher(),
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tempGrace: opts.TempGracePeriod,
		ephemeral: opts.Ephemeral,
		locks:     make(map[string]*entryLock),
	}
	if s.index == nil {
		s.index = NewIndex()
	}
	if s.clock == nil {
		s.clock = clock.WallClock
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.tempGrace <= 0 {
		s.tempGrace = DefaultTempGracePeriod
	}

	if err := s.rebuild(ctx); err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}
	return s, nil
}

// Root 返回缓存目录的绝对路径。
func (s *FileStore) Root() string {
	return s.root
}

// PutBytes 是 Put 的字节切片版本，空切片视为非法输入。
func (s *FileStore) PutBytes(ctx context.Context, data []byte, opts PutOptions) (*PutResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}
	return s.Put(ctx, bytes.NewReader(data), opts)
}

func (s *FileStore) Put(ctx context.Context, body io.Reader, opts PutOptions) (*PutResult, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: payload required", ErrInvalidInput)
	}
	if strings.TrimSpace(opts.ContentType) == "" {
		return nil, fmt.Errorf("%w: content type required", ErrInvalidInput)
	}
	ext := ExtensionForType(opts.ContentType)

	tempName, id, written, err := s.writeTemp(ctx, body, ext)
	if err != nil {
		s.metrics.ObservePut(metrics.PutFailed)
		return nil, err
	}
	if written == 0 {
		s.discardTemp(tempName)
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}

	if existing, ok := s.index.TryGet(id); ok {
		s.discardTemp(tempName)
		s.metrics.ObservePut(metrics.PutDeduplicated)
		return s.result(existing, true), nil
	}

	entry, deduplicated, err := s.commit(tempName, Entry{
		ID:               id,
		ContentType:      opts.ContentType,
		OriginalFileName: opts.FileName,
		FilePath:         filepath.Join(s.root, id+ext),
		SizeBytes:        written,
	})
	if err != nil {
		s.metrics.ObservePut(metrics.PutFailed)
		return nil, err
	}
	if deduplicated {
		s.metrics.ObservePut(metrics.PutDeduplicated)
	} else {
		s.metrics.ObservePut(metrics.PutStored)
	}
	return s.result(entry, deduplicated), nil
}

// writeTemp 单次遍历完成落盘与哈希。失败时临时文件留给 Cleanup 回收。
func (s *FileStore) writeTemp(ctx context.Context, body io.Reader, ext string) (string, string, int64, error) {
	tempName := filepath.Join(s.root, tempFilePrefix+uuid.NewString()+ext)
	tempFile, err := os.OpenFile(tempName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", "", 0, fmt.Errorf("create temp file: %w", err)
	}

	hw := s.hasher.NewWriter()
	written, err := copyWithContext(ctx, io.MultiWriter(tempFile, hw), body)
	if err == nil {
		err = tempFile.Sync()
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return "", "", 0, fmt.Errorf("write temp file: %w", err)
	}
	return tempName, hw.ID(), written, nil
}

// commit 在 id 级锁内完成 rename + 索引登记；一旦进入不再响应 ctx 取消，
// 避免出现已 rename 却没有索引条目的文件。
func (s *FileStore) commit(tempName string, entry Entry) (Entry, bool, error) {
	unlock := s.lockEntry(entry.ID)
	defer unlock()

	if existing, ok := s.index.TryGet(entry.ID); ok {
		s.discardTemp(tempName)
		return existing, true, nil
	}

	if info, err := os.Stat(entry.FilePath); err == nil {
		// 文件已存在但索引缺失（例如此前删除文件失败），内容相同，直接复用。
		s.discardTemp(tempName)
		entry.SizeBytes = info.Size()
	} else if err := os.Rename(tempName, entry.FilePath); err != nil {
		if _, statErr := os.Stat(entry.FilePath); statErr != nil {
			return Entry{}, false, fmt.Errorf("commit cache file: %w", err)
		}
		s.discardTemp(tempName)
	}

	// 复用的旧文件同样按本次写入计时，否则下一轮 Cleanup 会立即淘汰刚写入的内容。
	entry.CreatedAt = s.clock.Now().UTC()
	if err := os.Chtimes(entry.FilePath, entry.CreatedAt, entry.CreatedAt); err != nil {
		s.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache_put", "id": entry.ID}).
			Warn("cache_chtimes_failed")
	}

	retained, added := s.index.Add(entry)
	if added {
		s.metrics.EntryAdded(retained.SizeBytes)
	}
	return retained, !added, nil
}

func (s *FileStore) Get(ctx context.Context, ref string) (*Image, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	id, ok := ParseReference(ref)
	if !ok {
		s.metrics.ObserveGet(metrics.GetMiss)
		return nil, false, nil
	}
	entry, ok := s.index.TryGet(id)
	if !ok {
		s.metrics.ObserveGet(metrics.GetMiss)
		return nil, false, nil
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.healMissing(entry)
			s.metrics.ObserveGet(metrics.GetHealed)
			return nil, false, nil
		}
		s.metrics.ObserveGet(metrics.GetFailed)
		return nil, false, fmt.Errorf("read cache file: %w", err)
	}

	s.metrics.ObserveGet(metrics.GetHit)
	return &Image{Entry: entry, Data: data}, true, nil
}

// healMissing 移除文件已被外部删除的索引条目。加锁后重新确认，避免误删并发 Put 刚提交的条目。
func (s *FileStore) healMissing(entry Entry) {
	unlock := s.lockEntry(entry.ID)
	defer unlock()

	current, ok := s.index.TryGet(entry.ID)
	if !ok {
		return
	}
	if _, err := os.Stat(current.FilePath); !errors.Is(err, fs.ErrNotExist) {
		return
	}
	if removed, ok := s.index.Remove(entry.ID); ok {
		s.metrics.EntryRemoved(removed.SizeBytes)
	}
	s.logger.WithFields(logrus.Fields{
		"action": "cache_get",
		"id":     entry.ID,
		"path":   current.FilePath,
	}).Warn("cache_entry_missing_file")
}

// Lookup 只查询索引，不读取正文，供条件请求判断是否存在。
func (s *FileStore) Lookup(ctx context.Context, ref string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	id, ok := ParseReference(ref)
	if !ok {
		return Entry{}, false, nil
	}
	entry, ok := s.index.TryGet(id)
	return entry, ok, nil
}

func (s *FileStore) Delete(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id, ok := ParseReference(ref)
	if !ok {
		return false, nil
	}
	return s.deleteID(id), nil
}

// deleteID 先移除索引再删除文件；文件删除失败只记日志，条目不会重新写回。
func (s *FileStore) deleteID(id string) bool {
	unlock := s.lockEntry(id)
	defer unlock()

	entry, ok := s.index.Remove(id)
	if !ok {
		return false
	}
	s.removeEntryFile(entry)
	return true
}

// deleteIfExpired 在 id 锁内重新读取条目，只有当前条目仍早于 cutoff 时才删除。
// Scan 快照之后同一内容可能被删除并重新写入，新条目不能被旧快照淘汰。
func (s *FileStore) deleteIfExpired(id string, cutoff time.Time) bool {
	unlock := s.lockEntry(id)
	defer unlock()

	current, ok := s.index.TryGet(id)
	if !ok || !current.CreatedAt.Before(cutoff) {
		return false
	}
	entry, ok := s.index.Remove(id)
	if !ok {
		return false
	}
	s.removeEntryFile(entry)
	return true
}

func (s *FileStore) removeEntryFile(entry Entry) {
	s.metrics.EntryRemoved(entry.SizeBytes)
	s.metrics.ObserveDelete()

	if err := os.Remove(entry.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache_delete", "id": entry.ID, "path": entry.FilePath}).
			Warn("cache_file_remove_failed")
	}
}

func (s *FileStore) Stats() Stats {
	var stats Stats
	for _, entry := range s.index.Scan() {
		stats.Entries++
		stats.Bytes += entry.SizeBytes
	}
	return stats
}

// Close 在默认（持久）模式下不做任何事；仅 Ephemeral 模式删除整个目录。
func (s *FileStore) Close() error {
	if !s.ephemeral {
		return nil
	}
	s.logger.WithFields(logrus.Fields{
		"action": "cache_close",
		"path":   s.root,
	}).Info("ephemeral cache removed")
	return os.RemoveAll(s.root)
}

func (s *FileStore) result(entry Entry, deduplicated bool) *PutResult {
	return &PutResult{
		ID:           entry.ID,
		Reference:    Reference(s.prefix, entry.ID),
		Entry:        entry,
		Deduplicated: deduplicated,
	}
}

func (s *FileStore) discardTemp(name string) {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache_put", "path": name}).
			Debug("cache_temp_remove_failed")
	}
}

func (s *FileStore) lockEntry(id string) func() {
	s.mu.Lock()
	lock := s.locks[id]
	if lock == nil {
		lock = &entryLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
