package fileio

import (
	"encoding/base64"
	"mime"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"wcgw/internal/ops"
)

// Image is a base64-encoded image payload ready for the wire.
type Image struct {
	Path     string
	MimeType string
	Base64   string
}

// imageMimeByExt covers the handful of formats worth special-casing beyond
// mime.TypeByExtension's defaults (which can be empty on minimal systems).
var imageMimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
}

// ReadImage loads path and returns it base64-encoded with a best-effort
// mime type. There is no whitelist requirement for images: they're never a
// target of FileWriteOrEdit.
func (r *Reader) ReadImage(path string, maxSize int64) (Image, *ops.Error) {
	abs := absPath(path)
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return Image{}, ops.New(ops.PathNotFound, ops.ComponentFileIO, "no such file: %s", abs)
	}
	if err != nil {
		return Image{}, ops.New(ops.PathNotFound, ops.ComponentFileIO, "stat %s: %v", abs, err)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return Image{}, ops.New(ops.FileTooLarge, ops.ComponentFileIO,
			"%s is %s, exceeds the %s image limit", abs, humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(maxSize)))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return Image{}, ops.New(ops.PathNotFound, ops.ComponentFileIO, "read %s: %v", abs, err)
	}

	return Image{
		Path:     abs,
		MimeType: mimeType(abs),
		Base64:   base64.StdEncoding.EncodeToString(data),
	}, nil
}

func mimeType(path string) string {
	ext := filepath.Ext(path)
	if t, ok := imageMimeByExt[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
