package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/rexlx/drizzle/internal"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// form builds a multipart body, skipping nil parts. The first error sticks.
type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name string, value *string) *form {
	if f.err != nil || value == nil {
		return f
	}
	f.err = f.w.WriteField(name, *value)
	return f
}

func (f *form) file(name string, file *internal.File) *form {
	if f.err != nil || file == nil {
		return f
	}
	if file.Open == nil {
		f.err = fmt.Errorf("file %q cannot be opened", file.Name)
		return f
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", internal.ContentType(file.Name))

	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return f
	}
	rc, err := file.Open()
	if err != nil {
		f.err = err
		return f
	}
	defer rc.Close()
	_, f.err = io.Copy(part, rc)
	return f
}

func (f *form) finish() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return &f.buf, f.w.FormDataContentType(), nil
}
