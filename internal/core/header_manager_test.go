package core

import (
	"os"
	"path/filepath"
	"testing"
)

// headerConfig 在临时目录写入headers.yaml
func headerConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "headers.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHeaderManager_GetMergedHeaders(t *testing.T) {
	t.Run("默认头部存在", func(t *testing.T) {
		hm, err := NewHeaderManager(headerConfig(t, "headers:"), nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}
		headers := hm.GetMergedHeaders()
		if headers.Get("User-Agent") == "" || headers.Get("Accept-Language") == "" {
			t.Errorf("默认头部缺失: %v", headers)
		}
	})

	t.Run("优先级 默认 < 配置 < 命令行", func(t *testing.T) {
		path := headerConfig(t, `headers:
  X-Config: from-config
  Accept-Language: en-US
  Referer: https://onehousing.vn/config`)

		hm, err := NewHeaderManager(path, []string{"Referer: https://onehousing.vn/cli", "X-CLI: from-cli"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}
		if err := hm.LoadConfig(); err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}

		merged := hm.GetMergedHeaders()
		if merged.Get("Referer") != "https://onehousing.vn/cli" {
			t.Errorf("命令行应覆盖配置: Referer = %s", merged.Get("Referer"))
		}
		if merged.Get("Accept-Language") != "en-US" {
			t.Errorf("配置应覆盖默认: Accept-Language = %s", merged.Get("Accept-Language"))
		}
		if merged.Get("X-Config") == "" || merged.Get("X-CLI") == "" {
			t.Error("应同时包含配置和命令行头部")
		}
	})
}

func TestHeaderManager_GetSafeHeaders(t *testing.T) {
	hm, err := NewHeaderManager(headerConfig(t, "headers:"), []string{
		"Cookie: session=abcdefgh1234",
		"Authorization: Bearer secret-token-12345",
	})
	if err != nil {
		t.Fatal(err)
	}

	safe := hm.GetSafeHeaders()
	if safe["Authorization"] != "Bearer ***" {
		t.Errorf("Authorization = %q", safe["Authorization"])
	}
	if safe["Cookie"] == "session=abcdefgh1234" {
		t.Error("Cookie应该被脱敏")
	}
}

func TestHeaderManager_GetHeaders(t *testing.T) {
	t.Run("非法命令行参数返回错误", func(t *testing.T) {
		if _, err := NewHeaderManager("", []string{"InvalidFormat"}); err == nil {
			t.Error("期望返回错误, 但成功了")
		}
	})

	t.Run("禁止头部返回验证错误", func(t *testing.T) {
		hm, err := NewHeaderManager(headerConfig(t, "headers:"), []string{"Host: onehousing.vn"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := hm.GetHeaders(); err == nil {
			t.Error("期望返回验证错误, 但成功了")
		}
	})

	t.Run("User-Agent从池中轮换", func(t *testing.T) {
		path := headerConfig(t, `headers:
  Referer: https://onehousing.vn/
user_agents:
  - "UA-1"
  - "UA-2"`)
		hm, err := NewHeaderManager(path, nil)
		if err != nil {
			t.Fatal(err)
		}

		seen := map[string]bool{}
		for i := 0; i < 50; i++ {
			headers, err := hm.GetHeaders()
			if err != nil {
				t.Fatalf("GetHeaders失败: %v", err)
			}
			seen[headers.Get("User-Agent")] = true
		}
		for ua := range seen {
			if ua != "UA-1" && ua != "UA-2" {
				t.Errorf("User-Agent不在池中: %s", ua)
			}
		}
		if len(seen) != 2 {
			t.Errorf("50次请求只用到了 %d 个User-Agent", len(seen))
		}
	})

	t.Run("命令行User-Agent不轮换", func(t *testing.T) {
		hm, err := NewHeaderManager(headerConfig(t, "user_agents:\n  - UA-1\n  - UA-2"), []string{"User-Agent: TestBot/1.0"})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 10; i++ {
			headers, err := hm.GetHeaders()
			if err != nil {
				t.Fatal(err)
			}
			if headers.Get("User-Agent") != "TestBot/1.0" {
				t.Fatalf("User-Agent = %s, want TestBot/1.0", headers.Get("User-Agent"))
			}
		}
	})
}

func TestHeaderManager_BuiltinUserAgents(t *testing.T) {
	hm, err := NewHeaderManager(headerConfig(t, "headers:"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := hm.LoadConfig(); err != nil {
		t.Fatal(err)
	}
	if err := hm.Validate(); err != nil {
		t.Fatalf("内置User-Agent池应通过验证: %v", err)
	}

	ua := hm.RandomUserAgent()
	found := false
	for _, builtin := range builtinUserAgents {
		if ua == builtin {
			found = true
		}
	}
	if !found {
		t.Errorf("RandomUserAgent() = %s, 不在内置池中", ua)
	}
}
