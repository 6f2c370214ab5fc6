package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	FileTypeImage = "image"
	FileTypeVideo = "video"
)

type Post struct {
	ID        string    `json:"id"`
	Caption   string    `json:"caption"`
	URL       string    `json:"url"`
	FileType  string    `json:"file_type"`
	FileName  string    `json:"file_name"`
	CreatedAt Timestamp `json:"created_at"`
	UserID    string    `json:"user_id,omitempty"`
}

func (p Post) IsVideo() bool {
	return p.FileType == FileTypeVideo
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO 8601 form some
// backends emit (Python's datetime.isoformat); zone-less values are UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// API Payloads

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type FeedResponse struct {
	Posts []Post `json:"posts"`
}

type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// File is a media file picked on the local machine. Open may be called more
// than once: the preview and the upload each read it from the start.
type File struct {
	Name string
	Open func() (io.ReadCloser, error)
}

func FileFromPath(path string) File {
	return File{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

func FileFromBytes(name string, data []byte) File {
	return File{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
