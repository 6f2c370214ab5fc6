package editor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rexlx/drizzle/internal"
)

var ErrNotMedia = errors.New("Only image and video files are allowed")

// Preview is a local rendering of a picked file, made before any upload.
type Preview struct {
	MIME    string
	Kind    string // internal.FileTypeImage or internal.FileTypeVideo
	DataURI string
	Data    []byte
}

func (p Preview) IsVideo() bool {
	return p.Kind == internal.FileTypeVideo
}

type Previewer interface {
	Preview(ctx context.Context, file internal.File) (Preview, error)
}

type PreviewFunc func(ctx context.Context, file internal.File) (Preview, error)

func (f PreviewFunc) Preview(ctx context.Context, file internal.File) (Preview, error) {
	return f(ctx, file)
}

const DefaultPreviewLimit = 64 << 20

// sniffLen is all http.DetectContentType looks at.
const sniffLen = 512

// SniffPreviewer only works out the media type of a file from its first
// bytes and its name. Preview.DataURI and Preview.Data stay empty.
type SniffPreviewer struct{}

func (SniffPreviewer) Preview(ctx context.Context, file internal.File) (Preview, error) {
	rc, err := openFile(file)
	if err != nil {
		return Preview{}, err
	}
	defer rc.Close()

	pv, _, err := sniff(ctx, file.Name, rc)
	return pv, err
}

// DataURIPreviewer reads images whole into a base64 data URI. Videos are
// only sniffed; nothing shows them inline.
type DataURIPreviewer struct {
	// MaxBytes caps how much of an image is read; zero means DefaultPreviewLimit.
	MaxBytes int64
}

func (d DataURIPreviewer) Preview(ctx context.Context, file internal.File) (Preview, error) {
	limit := d.MaxBytes
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}

	rc, err := openFile(file)
	if err != nil {
		return Preview{}, err
	}
	defer rc.Close()

	pv, head, err := sniff(ctx, file.Name, rc)
	if err != nil || pv.Kind != internal.FileTypeImage {
		return pv, err
	}

	data, err := io.ReadAll(io.LimitReader(io.MultiReader(bytes.NewReader(head), rc), limit+1))
	if err != nil {
		return Preview{}, fmt.Errorf("preview %s: %w", file.Name, err)
	}
	if int64(len(data)) > limit {
		return Preview{}, fmt.Errorf("preview %s: file is larger than %d bytes", file.Name, limit)
	}
	if err := ctx.Err(); err != nil {
		return Preview{}, err
	}

	pv.DataURI = "data:" + pv.MIME + ";base64," + base64.StdEncoding.EncodeToString(data)
	pv.Data = data
	return pv, nil
}

func openFile(file internal.File) (io.ReadCloser, error) {
	if file.Open == nil {
		return nil, fmt.Errorf("preview %s: no reader", file.Name)
	}
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", file.Name, err)
	}
	return rc, nil
}

// sniff reads up to sniffLen bytes from r and types them, content first,
// then the name. It returns the bytes it consumed.
func sniff(ctx context.Context, name string, r io.Reader) (Preview, []byte, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Preview{}, nil, fmt.Errorf("preview %s: %w", name, err)
	}
	head = head[:n]
	if err := ctx.Err(); err != nil {
		return Preview{}, nil, err
	}

	mimeType := http.DetectContentType(head)
	kind := internal.FileTypeOf(mimeType)
	if kind == "" {
		mimeType = internal.ContentType(name)
		kind = internal.FileTypeOf(mimeType)
	}
	if kind == "" {
		return Preview{}, nil, ErrNotMedia
	}
	return Preview{MIME: mimeType, Kind: kind}, head, nil
}
