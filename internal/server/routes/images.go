package routes

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pixhub/pixcache/internal/cache"
	"github.com/pixhub/pixcache/internal/logging"
	"github.com/pixhub/pixcache/internal/server"
)

// ImageStore 是图片路由依赖的最小存储能力。
type ImageStore interface {
	Put(ctx context.Context, body io.Reader, opts cache.PutOptions) (*cache.PutResult, error)
	Get(ctx context.Context, ref string) (*cache.Image, bool, error)
	Lookup(ctx context.Context, ref string) (cache.Entry, bool, error)
	Delete(ctx context.Context, ref string) (bool, error)
}

// ImageRouteOptions 描述图片路由的依赖与响应策略。
type ImageRouteOptions struct {
	Store  ImageStore
	Logger *logrus.Logger
	// RoutePrefix 与 Store 生成引用时使用的前缀保持一致。
	RoutePrefix string
	// PublicBaseURL 非空时用于拼接绝对 URI，否则使用请求的 BaseURL。
	PublicBaseURL string
	// CacheMaxAge 写入 Cache-Control 的 max-age。
	CacheMaxAge time.Duration
}

type uploadRequest struct {
	Data        string `json:"data"`
	ContentType string `json:"contentType"`
	FileName    string `json:"fileName"`
}

type uploadResponse struct {
	URI          string `json:"uri"`
	ID           string `json:"id"`
	Reference    string `json:"reference"`
	Deduplicated bool   `json:"deduplicated"`
}

var errPayloadRequired = errors.New("payload required")

// RegisterImageRoutes 挂载 GET/POST/DELETE {prefix}/images 接口。
func RegisterImageRoutes(app *fiber.App, opts ImageRouteOptions) {
	if app == nil || opts.Store == nil {
		return
	}
	h := &imageHandler{
		store:        opts.Store,
		logger:       opts.Logger,
		baseURL:      strings.TrimSuffix(opts.PublicBaseURL, "/"),
		cacheControl: "public, max-age=" + strconv.FormatInt(int64(opts.CacheMaxAge/time.Second), 10),
	}
	if h.logger == nil {
		h.logger = logrus.StandardLogger()
	}

	base := cache.NormalizePrefix(opts.RoutePrefix) + "/images"
	app.Post(base, h.upload)
	app.Get(base+"/:id", h.fetch)
	app.Delete(base+"/:id", h.remove)
}

type imageHandler struct {
	store        ImageStore
	logger       *logrus.Logger
	baseURL      string
	cacheControl string
}

func (h *imageHandler) fetch(c fiber.Ctx) error {
	ref := c.Params("id")
	// 条件请求先查索引，命中 ETag 时不读取正文。
	if inm := c.Get(fiber.HeaderIfNoneMatch); inm != "" {
		entry, ok, err := h.store.Lookup(c.Context(), ref)
		if err != nil {
			return h.readFailed(c, ref, err)
		}
		if ok && etagMatches(inm, entry.ID) {
			h.setCacheHeaders(c, entry.ID)
			return c.SendStatus(fiber.StatusNotModified)
		}
	}

	img, ok, err := h.store.Get(c.Context(), ref)
	if err != nil {
		return h.readFailed(c, ref, err)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "image_not_found"})
	}

	h.setCacheHeaders(c, img.Entry.ID)
	c.Set(fiber.HeaderContentType, img.Entry.ContentType)
	return c.Status(fiber.StatusOK).Send(img.Data)
}

func (h *imageHandler) setCacheHeaders(c fiber.Ctx, id string) {
	c.Set(fiber.HeaderCacheControl, h.cacheControl)
	c.Set(fiber.HeaderETag, `"`+id+`"`)
}

func (h *imageHandler) readFailed(c fiber.Ctx, ref string, err error) error {
	h.logger.WithFields(logging.ImageFields("image_get", server.RequestID(c), ref)).
		WithError(err).Error("读取图片失败")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "image_read_failed"})
}

func (h *imageHandler) upload(c fiber.Ctx) error {
	reqID := server.RequestID(c)
	var req uploadRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	data, contentType, err := decodePayload(req.Data, req.ContentType)
	switch {
	case errors.Is(err, errPayloadRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payload_required"})
	case err != nil:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	case contentType == "":
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content_type_required"})
	}

	res, err := h.store.Put(c.Context(), bytes.NewReader(data), cache.PutOptions{
		ContentType: contentType,
		FileName:    req.FileName,
	})
	if err != nil {
		if errors.Is(err, cache.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		h.logger.WithFields(logging.ImageFields("image_put", reqID, "")).
			WithError(err).Error("写入图片失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "image_store_failed"})
	}

	h.logger.WithFields(logging.ImageFields("image_put", reqID, res.ID)).
		WithFields(logrus.Fields{
			"deduplicated": res.Deduplicated,
			"size_bytes":   res.Entry.SizeBytes,
		}).Info("图片已缓存")

	base := h.baseURL
	if base == "" {
		base = c.BaseURL()
	}
	return c.JSON(uploadResponse{
		URI:          base + res.Reference,
		ID:           res.ID,
		Reference:    res.Reference,
		Deduplicated: res.Deduplicated,
	})
}

func (h *imageHandler) remove(c fiber.Ctx) error {
	id := c.Params("id")
	removed, err := h.store.Delete(c.Context(), id)
	if err != nil {
		h.logger.WithFields(logging.ImageFields("image_delete", server.RequestID(c), id)).
			WithError(err).Error("删除图片失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "image_delete_failed"})
	}
	if removed {
		h.logger.WithFields(logging.ImageFields("image_delete", server.RequestID(c), id)).Debug("图片已删除")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// decodePayload 解析裸 base64 或 data:<type>;base64,<data> 形式的正文。
// data URL 中的类型仅在请求未显式给出 contentType 时生效。
func decodePayload(raw, contentType string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	contentType = strings.TrimSpace(contentType)
	if raw == "" {
		return nil, contentType, errPayloadRequired
	}

	if rest, ok := strings.CutPrefix(raw, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, contentType, errors.New("malformed data url")
		}
		mediaType, encoding, _ := strings.Cut(meta, ";")
		if !strings.EqualFold(encoding, "base64") {
			return nil, contentType, errors.New("data url must be base64 encoded")
		}
		if contentType == "" {
			contentType = strings.TrimSpace(mediaType)
		}
		raw = payload
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
		if err != nil {
			return nil, contentType, err
		}
	}
	if len(data) == 0 {
		return nil, contentType, errPayloadRequired
	}
	return data, contentType, nil
}

// etagMatches 判断 If-None-Match 是否命中当前 id，兼容弱校验与多值列表。
func etagMatches(header, id string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if strings.Trim(candidate, `"`) == id {
			return true
		}
	}
	return false
}
