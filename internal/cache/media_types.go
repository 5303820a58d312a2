package cache

import (
	"mime"
	"strings"
)

const (
	genericExtension   = ".bin"
	genericContentType = "application/octet-stream"
)

// extensionByType 固定映射表，不依赖系统 mime.types，保证不同机器上文件名一致。
var extensionByType = map[string]string{
	"image/jpeg":     ".jpg",
	"image/jpg":      ".jpg",
	"image/pjpeg":    ".jpg",
	"image/png":      ".png",
	"image/gif":      ".gif",
	"image/webp":     ".webp",
	"image/bmp":      ".bmp",
	"image/x-ms-bmp": ".bmp",
	"image/tiff":     ".tiff",
}

// typeByExtension 仅在重建索引时使用，此时没有调用方提供的 Content-Type。
var typeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".bin":  genericContentType,
}

// ExtensionForType 返回 Content-Type 对应的规范扩展名，未知类型回退到 .bin。
func ExtensionForType(contentType string) string {
	if ext, ok := extensionByType[normalizeMediaType(contentType)]; ok {
		return ext
	}
	return genericExtension
}

// TypeForExtension 返回扩展名对应的 Content-Type；ok=false 表示不是缓存写出的文件。
func TypeForExtension(ext string) (string, bool) {
	ct, ok := typeByExtension[strings.ToLower(ext)]
	return ct, ok
}

func normalizeMediaType(contentType string) string {
	raw := strings.TrimSpace(contentType)
	if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
		return mediaType
	}
	if idx := strings.IndexByte(raw, ';'); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.ToLower(strings.TrimSpace(raw))
}
