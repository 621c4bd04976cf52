package media

import (
	"errors"
	"testing"
)

func TestNewCloudinaryUploader_NotConfigured(t *testing.T) {
	tests := []struct {
		name   string
		config CloudinaryConfig
	}{
		{"全部为空", CloudinaryConfig{}},
		{"缺少cloud name", CloudinaryConfig{APIKey: "key", APISecret: "secret"}},
		{"缺少api key", CloudinaryConfig{CloudName: "demo", APISecret: "secret"}},
		{"缺少api secret", CloudinaryConfig{CloudName: "demo", APIKey: "key"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewCloudinaryUploader(tt.config)
			if !errors.Is(err, ErrNotConfigured) {
				t.Errorf("NewCloudinaryUploader() error = %v, want ErrNotConfigured", err)
			}
			if u != nil {
				t.Error("凭据不全时不应返回上传器")
			}
		})
	}
}

func TestCloudinaryUploader_PublicID(t *testing.T) {
	tests := []struct {
		name   string
		folder string
		id     string
		want   string
	}{
		{"普通目录", "listings", "OH-1", "listings/OH-1"},
		{"首尾斜杠", "/listings/", "OH-1", "listings/OH-1"},
		{"多级目录", "onehousing/listings", "OH-2", "onehousing/listings/OH-2"},
		{"无目录", "", "OH-3", "OH-3"},
		{"只有斜杠", "/", "OH-4", "OH-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewCloudinaryUploader(CloudinaryConfig{
				CloudName: "demo",
				APIKey:    "key",
				APISecret: "secret",
				Folder:    tt.folder,
			})
			if err != nil {
				t.Fatalf("NewCloudinaryUploader() error = %v", err)
			}
			if got := u.PublicID(tt.id); got != tt.want {
				t.Errorf("PublicID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
