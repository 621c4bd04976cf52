package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSaveURLList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "listing_urls.json")

	urls := []string{
		"https://onehousing.vn/c",
		"https://onehousing.vn/a",
		"",
		"https://onehousing.vn/c",
		"https://onehousing.vn/b",
	}
	if err := SaveURLList(path, urls); err != nil {
		t.Fatalf("SaveURLList() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("输出不是JSON数组: %v", err)
	}
	want := []string{"https://onehousing.vn/a", "https://onehousing.vn/b", "https://onehousing.vn/c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("保存的URL = %v, want %v", got, want)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("临时文件应已被重命名")
	}
}

func TestLoadURLList(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name:    "JSON数组",
			content: `["https://onehousing.vn/a", "https://onehousing.vn/b"]`,
			want:    []string{"https://onehousing.vn/a", "https://onehousing.vn/b"},
		},
		{
			name:    "纯文本每行一个",
			content: "# 注释\nhttps://onehousing.vn/a\n\nhttps://onehousing.vn/b\n",
			want:    []string{"https://onehousing.vn/a", "https://onehousing.vn/b"},
		},
		{
			name:    "无效JSON",
			content: `["https://onehousing.vn/a",`,
			wantErr: true,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "urls"+string(rune('a'+i)))
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			got, err := LoadURLList(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadURLList() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LoadURLList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadURLList_MissingFile(t *testing.T) {
	if _, err := LoadURLList(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("文件不存在时应返回错误")
	}
}
