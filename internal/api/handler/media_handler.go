package handler

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/pkg/response"
	"Murmur/internal/service"
	"errors"
	log "log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxFilesPerUpload 单次最多上传的文件数
const MaxFilesPerUpload = 10

type MediaHandler struct {
	mediaService service.MediaService
}

func NewMediaHandler(mediaService service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// Upload 接收 files 字段的多个文件，兼容单个 file 字段
func (s *MediaHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	files := append(form.File["files"], form.File["file"]...)
	if len(files) == 0 || len(files) > MaxFilesPerUpload {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res := &dto.MediaListDTO{Media: make([]*dto.MediaUploadDTO, 0, len(files))}
	for _, fh := range files {
		item, err := s.uploadOne(c, fh)
		if err != nil {
			response.Error(c, err)
			return
		}
		res.Media = append(res.Media, item)
	}
	response.Success(c, res)
}

func (s *MediaHandler) uploadOne(c *gin.Context, fh *multipart.FileHeader) (*dto.MediaUploadDTO, error) {
	if fh.Size > service.MaxMediaSize {
		return nil, service.ErrFileTooLarge
	}
	reader, err := fh.Open()
	if err != nil {
		return nil, service.ErrParamInvalid
	}
	defer func() { _ = reader.Close() }()

	return s.mediaService.Upload(c.Request.Context(), currentUser(c), &service.MediaFile{
		Filename: fh.Filename,
		Size:     fh.Size,
		Reader:   reader,
	})
}

// Resolve 令牌有效时重定向到预签名地址，无效或过期返回 404
func (s *MediaHandler) Resolve(c *gin.Context) {
	url, err := s.mediaService.Resolve(c.Request.Context(), c.Query("token"))
	if err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		log.ErrorContext(c.Request.Context(), "resolve chat media failed", "err", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Redirect(http.StatusFound, url)
}
