package util

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	sniffLen       = 512
	ThumbnailWidth = 320
)

// GetSafeContentType 根据文件头判断 MIME，读取后把 reader 复位
func GetSafeContentType(reader io.ReadSeeker) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err = reader.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	contentType := http.DetectContentType(head[:n])
	if i := strings.IndexByte(contentType, ';'); i > 0 {
		contentType = contentType[:i]
	}
	return contentType, nil
}

// MakeThumbnail 等比缩放到 ThumbnailWidth 宽，输出 JPEG，同时返回原图尺寸
func MakeThumbnail(reader io.Reader) (thumb []byte, width, height int, err error) {
	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	width, height = bounds.Dx(), bounds.Dy()

	var small image.Image = img
	if width > ThumbnailWidth {
		small = imaging.Resize(img, ThumbnailWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err = imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, 0, 0, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), width, height, nil
}
