package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理图片缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<id><ext>             # 已提交的正文
//	<StoragePath>/.tmp-<uuid><ext>      # 写入中的临时文件
//
// 目录中不保存额外的元数据文件，Index 可由文件名 + ModTime 完整重建。
type Store interface {
	// Put 边写临时文件边计算哈希，随后通过 rename 原子提交。内容相同的多次写入
	// 返回同一个 id，磁盘上只保留一份文件。
	Put(ctx context.Context, body io.Reader, opts PutOptions) (*PutResult, error)

	// Get 接受裸 id 或 /{prefix}/images/{id} 引用。未命中时返回 ok=false 而不是错误。
	Get(ctx context.Context, ref string) (*Image, bool, error)

	// Lookup 只查询索引中的条目，不读取文件。
	Lookup(ctx context.Context, ref string) (Entry, bool, error)

	// Delete 删除索引条目并尽力删除文件，不存在的 id 静默忽略。
	Delete(ctx context.Context, ref string) (bool, error)

	// Cleanup 清理 CreatedAt 早于 now-maxAge 的条目，并回收过期的临时文件。
	Cleanup(ctx context.Context, maxAge time.Duration) (CleanupReport, error)

	// Stats 返回当前索引的条目数与总字节数。
	Stats() Stats
}

// PutOptions 描述一次写入的调用方属性。
type PutOptions struct {
	// ContentType 必填，决定文件扩展名并在读取时原样返回。
	ContentType string
	// FileName 仅供展示，不参与查找。
	FileName string
}

// Entry 是索引中的一条记录；目录里的文件才是持久化副本。
type Entry struct {
	ID               string    `json:"id"`
	ContentType      string    `json:"content_type"`
	OriginalFileName string    `json:"original_file_name,omitempty"`
	FilePath         string    `json:"file_path"`
	CreatedAt        time.Time `json:"created_at"`
	SizeBytes        int64     `json:"size_bytes"`
}

// PutResult 返回写入后的条目以及对外引用。
type PutResult struct {
	ID        string
	Reference string
	Entry     Entry
	// Deduplicated 表示内容已存在，本次写入没有产生新文件。
	Deduplicated bool
}

// Image 组合条目元数据与完整正文。
type Image struct {
	Entry Entry
	Data  []byte
}

// CleanupReport 汇总一次清理周期的结果，便于日志与诊断接口输出。
type CleanupReport struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	TempSwept int `json:"temp_swept"`
	Failures  int `json:"failures"`
}

// Stats 描述索引当前规模。
type Stats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// ErrInvalidInput 表示调用方缺少正文或 Content-Type，在任何 I/O 之前被拒绝。
var ErrInvalidInput = errors.New("invalid cache input")
