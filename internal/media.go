package internal

import (
	"mime"
	"path/filepath"
	"strings"
)

// The standard library's table has no video types, and the system table is
// not always present.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".ogv":  "video/ogg",
}

// MediaExtensions lists the extensions file pickers offer.
var MediaExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp",
	".mp4", ".m4v", ".mov", ".webm", ".mkv", ".avi", ".ogv",
}

// ContentType guesses a MIME type from the file name.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// FileTypeOf maps a MIME type onto a post file_type, or "" when it is neither
// an image nor a video.
func FileTypeOf(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return FileTypeImage
	case strings.HasPrefix(contentType, "video/"):
		return FileTypeVideo
	}
	return ""
}
