// Package media 截图上传到图床
package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// ErrNotConfigured 缺少图床凭据
var ErrNotConfigured = errors.New("Cloudinary凭据未配置(CLOUDINARY_CLOUD_NAME/API_KEY/API_SECRET)")

// CloudinaryConfig 图床连接参数
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string // 上传目录,public_id为 <Folder>/<房源编号>
}

// CloudinaryUploader 上传本地图片到Cloudinary
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryUploader 创建上传器
func NewCloudinaryUploader(config CloudinaryConfig) (*CloudinaryUploader, error) {
	if config.CloudName == "" || config.APIKey == "" || config.APISecret == "" {
		return nil, ErrNotConfigured
	}

	cld, err := cloudinary.NewFromParams(config.CloudName, config.APIKey, config.APISecret)
	if err != nil {
		return nil, fmt.Errorf("初始化Cloudinary失败: %w", err)
	}

	return &CloudinaryUploader{
		cld:    cld,
		folder: strings.Trim(config.Folder, "/"),
	}, nil
}

// PublicID 返回房源编号对应的public_id
func (u *CloudinaryUploader) PublicID(id string) string {
	if u.folder == "" {
		return id
	}
	return path.Join(u.folder, id)
}

// Upload 上传文件并返回HTTPS地址,同名资源会被覆盖
func (u *CloudinaryUploader) Upload(ctx context.Context, filePath string, id string) (string, error) {
	resp, err := u.cld.Upload.Upload(ctx, filePath, uploader.UploadParams{
		PublicID:  u.PublicID(id),
		Overwrite: api.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("上传失败 [%s]: %w", id, err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("上传失败 [%s]: %s", id, resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("上传失败 [%s]: 响应中没有secure_url", id)
	}
	return resp.SecureURL, nil
}
