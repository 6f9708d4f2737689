package asset

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const octetStream = "application/octet-stream"

// byExt is deliberately small: the asset types marketing sites upload.
// Lookups use the lower-cased extension including the dot.
var byExt = map[string]string{
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".avif":  "image/avif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".bmp":   "image/bmp",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".mp3":   "audio/mpeg",
	".pdf":   "application/pdf",
	".json":  "application/json",
	".css":   "text/css",
	".js":    "text/javascript",
	".txt":   "text/plain; charset=utf-8",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
}

// generic reports whether a stored type says nothing useful.
func generic(ct string) bool {
	switch strings.ToLower(strings.TrimSpace(ct)) {
	case "", octetStream, "binary/octet-stream", "application/x-binary":
		return true
	}
	return false
}

// fromExt returns the table entry for name, or "".
func fromExt(name string) string {
	return byExt[strings.ToLower(path.Ext(name))]
}

// ResponseType picks the type served for a stored object: the stored
// type when specific, else the extension table, else octet-stream.
func ResponseType(name, stored string) string {
	if !generic(stored) {
		return stored
	}
	if ct := fromExt(name); ct != "" {
		return ct
	}
	return octetStream
}

// InferType picks the type written on save when the caller sent none.
// Unknown extensions fall back to sniffing the bytes.
func InferType(name, supplied string, data []byte) string {
	if !generic(supplied) {
		return supplied
	}
	if ct := fromExt(name); ct != "" {
		return ct
	}
	if len(data) > 0 {
		return mimetype.Detect(data).String()
	}
	return octetStream
}
