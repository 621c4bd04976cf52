package utils

import (
	"net/http"
	"testing"
)

func TestHeaderRedactor_Redact(t *testing.T) {
	redactor := NewHeaderRedactor()

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"Bearer令牌", "Authorization", "Bearer secret-token-12345", "Bearer ***"},
		{"长密钥保留首尾", "X-Api-Key", "key12345678", "key1***5678"},
		{"短密钥完全隐藏", "X-Secret", "abc", "***"},
		{"Cookie逐项隐藏", "Cookie", "session=abcdefgh1234; cf_clearance=xyz", "session=***; cf_clearance=***"},
		{"空值", "Authorization", "", "***"},
		{"普通头部不脱敏", "User-Agent", "Mozilla/5.0", "Mozilla/5.0"},
		{"Referer不脱敏", "Referer", "https://onehousing.vn/", "https://onehousing.vn/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Set(tt.header, tt.value)
			got := redactor.Redact(headers)[http.CanonicalHeaderKey(tt.header)]
			if got != tt.want {
				t.Errorf("Redact(%s) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestHeaderRedactor_IsSensitiveHeader(t *testing.T) {
	redactor := NewHeaderRedactor()
	for _, name := range []string{"Authorization", "X-Token", "X-API-Key", "Cookie", "X-Credential"} {
		if !redactor.IsSensitiveHeader(name) {
			t.Errorf("应该被识别为敏感头部: %s", name)
		}
	}
	for _, name := range []string{"Accept", "Accept-Language", "Referer"} {
		if redactor.IsSensitiveHeader(name) {
			t.Errorf("不应被识别为敏感头部: %s", name)
		}
	}
}

func TestHeaderRedactor_RedactToString(t *testing.T) {
	headers := http.Header{}
	headers.Set("Referer", "https://onehousing.vn/")
	headers.Set("Authorization", "Bearer abc")
	headers.Set("Accept", "text/html")

	out := NewHeaderRedactor().RedactToString(headers)
	want := "Accept: text/html, Authorization: Bearer ***, Referer: https://onehousing.vn/"
	if out != want {
		t.Errorf("RedactToString() = %q, want %q", out, want)
	}
}
