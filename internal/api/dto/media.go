package dto

// MediaUploadDTO 上传结果
type MediaUploadDTO struct {
	URL            string `json:"url"`
	Type           string `json:"type"`
	MimeType       string `json:"mime_type"`
	Size           int64  `json:"size"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Token          string `json:"token"`
	Thumbnail      string `json:"thumbnail,omitempty"`
	ThumbnailToken string `json:"thumbnail_token,omitempty"`
	Original       string `json:"original"`
}

// MediaListDTO 一次上传多个文件
type MediaListDTO struct {
	Media []*MediaUploadDTO `json:"media"`
}
