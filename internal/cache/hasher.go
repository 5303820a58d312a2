package cache

import (
	_ "crypto/sha256"
	"hash"
	"io"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Hasher 计算内容 id：固定算法的摘要，以小写十六进制表示。
type Hasher struct {
	algorithm digest.Algorithm
}

// NewHasher 返回基于 SHA-256 的 Hasher。
func NewHasher() Hasher {
	return Hasher{algorithm: digest.SHA256}
}

// Sum 计算整段字节的 id。
func (h Hasher) Sum(data []byte) string {
	return h.algorithm.FromBytes(data).Encoded()
}

// SumReader 流式读取 r 并返回 id 与读取的字节数。
func (h Hasher) SumReader(r io.Reader) (string, int64, error) {
	w := h.NewWriter()
	n, err := io.Copy(w, r)
	if err != nil {
		return "", n, err
	}
	return w.ID(), n, nil
}

// NewWriter 返回一个增量哈希 Writer，通常与目标文件组成 io.MultiWriter。
func (h Hasher) NewWriter() *HashingWriter {
	d := h.algorithm.Digester()
	return &HashingWriter{digester: d, hash: d.Hash()}
}

// Valid 判断 id 是否为当前算法合法的小写十六进制摘要。
func (h Hasher) Valid(id string) bool {
	if id == "" || strings.ToLower(id) != id {
		return false
	}
	return digest.NewDigestFromEncoded(h.algorithm, id).Validate() == nil
}

// HashingWriter 累积写入内容的摘要。
type HashingWriter struct {
	digester digest.Digester
	hash     hash.Hash
	written  int64
}

func (w *HashingWriter) Write(p []byte) (int, error) {
	n, err := w.hash.Write(p)
	w.written += int64(n)
	return n, err
}

// ID 返回目前为止写入内容的 id。
func (w *HashingWriter) ID() string {
	return w.digester.Digest().Encoded()
}

// Written 返回已写入的字节数。
func (w *HashingWriter) Written() int64 {
	return w.written
}
