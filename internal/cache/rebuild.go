package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// rebuild 扫描缓存目录重建索引。文件名必须是 <id><已知扩展名>；
// 临时文件与无法解析的文件都不会进入索引。
func (s *FileStore) rebuild(ctx context.Context) error {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}

	loaded, skipped := 0, 0
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !de.Type().IsRegular() {
			continue
		}
		entry, ok := s.entryFromFile(de)
		if !ok {
			skipped++
			continue
		}
		if existing, added := s.index.Add(entry); !added {
			s.logger.WithFields(logrus.Fields{
				"action":   "cache_rebuild",
				"id":       entry.ID,
				"kept":     existing.FilePath,
				"shadowed": entry.FilePath,
			}).Warn("cache_duplicate_file")
			continue
		}
		s.metrics.EntryAdded(entry.SizeBytes)
		loaded++
	}

	s.logger.WithFields(logrus.Fields{
		"action":  "cache_rebuild",
		"path":    s.root,
		"entries": loaded,
		"skipped": skipped,
	}).Info("cache index rebuilt")
	return nil
}

func (s *FileStore) entryFromFile(de os.DirEntry) (Entry, bool) {
	name := de.Name()
	if isTempName(name) {
		return Entry{}, false
	}
	ext := filepath.Ext(name)
	id := strings.TrimSuffix(name, ext)
	if !s.hasher.Valid(id) {
		return Entry{}, false
	}
	contentType, ok := TypeForExtension(ext)
	if !ok {
		return Entry{}, false
	}
	info, err := de.Info()
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		ID:          id,
		ContentType: contentType,
		FilePath:    filepath.Join(s.root, name),
		CreatedAt:   info.ModTime().UTC(),
		SizeBytes:   info.Size(),
	}, true
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, tempFilePrefix)
}
