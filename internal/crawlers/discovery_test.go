package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
)

// listingServer 模拟列表页,handler决定每页的响应
type listingServer struct {
	*httptest.Server

	mu        sync.Mutex
	requested []int
	headers   []http.Header
}

func newListingServer(t *testing.T, handler func(w http.ResponseWriter, page int)) *listingServer {
	ls := &listingServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		ls.mu.Lock()
		ls.requested = append(ls.requested, page)
		ls.headers = append(ls.headers, r.Header.Clone())
		ls.mu.Unlock()
		handler(w, page)
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *listingServer) pages() []int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]int(nil), ls.requested...)
}

// cardsPage 每页两张卡片,相邻页之间有一张重复
func cardsPage(w http.ResponseWriter, page int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body>
		<a data-role="property-card" href="/nha-dat-ban/p%d">p%d</a>
		<a data-role="property-card" href="/nha-dat-ban/p%d#top">p%d</a>
		<a data-role="property-card" href="https://example.com/ad">ad</a>
		<a href="/nha-dat-ban/not-a-card">x</a>
	</body></html>`, page, page, page+1, page+1)
}

func testDiscoveryConfig(baseURL string, pages int) models.ScrapeConfig {
	cfg := models.DefaultScrapeConfig()
	cfg.BaseURL = baseURL
	cfg.TotalPages = pages
	cfg.MaxRetries = 2
	cfg.RetryDelay = 0
	cfg.RequestInterval = 0
	cfg.NavTimeout = 5
	cfg.CheckpointEvery = 1
	return cfg
}

func newTestDiscoverer(cfg models.ScrapeConfig, checkpoint string) *Discoverer {
	d := NewDiscoverer(cfg, checkpoint, nil, nil)
	d.SetRetryPolicy(instantPolicy(cfg.MaxRetries, 0, nil))
	return d
}

func TestDiscoverer_Discover(t *testing.T) {
	server := newListingServer(t, cardsPage)
	cfg := testDiscoveryConfig(server.URL, 3)
	checkpoint := filepath.Join(t.TempDir(), "discovery_checkpoint.json")

	d := newTestDiscoverer(cfg, checkpoint)
	urls, err := d.Discover(NewStopSignal(context.Background()), false)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	want := []string{
		server.URL + "/nha-dat-ban/p1",
		server.URL + "/nha-dat-ban/p2",
		server.URL + "/nha-dat-ban/p3",
		server.URL + "/nha-dat-ban/p4",
	}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("Discover() = %v, want %v", urls, want)
	}

	stats := d.Stats()
	if stats.PagesFetched != 3 || stats.PagesFailed != 0 || stats.Discovered != 4 {
		t.Errorf("Stats() = %+v", stats)
	}
	if got := server.pages(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("请求的页 = %v, want [1 2 3]", got)
	}
	if _, err := os.Stat(checkpoint); !os.IsNotExist(err) {
		t.Error("完整跑完后检查点应被删除")
	}
}

func TestDiscoverer_EscalatesAfterConsecutiveFailures(t *testing.T) {
	server := newListingServer(t, func(w http.ResponseWriter, page int) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	cfg := testDiscoveryConfig(server.URL, 10)
	checkpoint := filepath.Join(t.TempDir(), "discovery_checkpoint.json")

	stop := NewStopSignal(context.Background())
	d := newTestDiscoverer(cfg, checkpoint)
	urls, err := d.Discover(stop, false)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(urls) != 0 {
		t.Errorf("Discover() = %v, want empty", urls)
	}

	if !errors.Is(stop.Reason(), models.ErrSiteUnavailable) {
		t.Fatalf("Reason() = %v, want ErrSiteUnavailable", stop.Reason())
	}
	for _, page := range server.pages() {
		if page >= 4 {
			t.Errorf("连续3页失败后不应再请求第%d页", page)
		}
	}
	// 每页重试2次
	if n := len(server.pages()); n != 6 {
		t.Errorf("请求次数 = %d, want 6", n)
	}

	cp, err := models.LoadCheckpointFromFile(checkpoint)
	if err != nil {
		t.Fatalf("中止后应保存检查点: %v", err)
	}
	if cp.NextPage != 4 || !reflect.DeepEqual(cp.FailedPages, []int{1, 2, 3}) {
		t.Errorf("检查点 NextPage=%d FailedPages=%v", cp.NextPage, cp.FailedPages)
	}
}

func TestDiscoverer_FailureCountResetsOnSuccess(t *testing.T) {
	// 第1,2页失败,第3页成功,第4,5页失败: 没有连续3次
	server := newListingServer(t, func(w http.ResponseWriter, page int) {
		if page == 3 {
			cardsPage(w, page)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	cfg := testDiscoveryConfig(server.URL, 5)

	stop := NewStopSignal(context.Background())
	d := newTestDiscoverer(cfg, "")
	urls, _ := d.Discover(stop, false)

	if stop.Stopped() {
		t.Errorf("不应中止, Reason() = %v", stop.Reason())
	}
	if len(urls) != 2 {
		t.Errorf("Discover() = %v, want 2个URL", urls)
	}
	if d.Stats().PagesFailed != 4 {
		t.Errorf("PagesFailed = %d, want 4", d.Stats().PagesFailed)
	}
}

func TestDiscoverer_ResumeFromCheckpoint(t *testing.T) {
	server := newListingServer(t, cardsPage)
	cfg := testDiscoveryConfig(server.URL, 4)
	checkpoint := filepath.Join(t.TempDir(), "discovery_checkpoint.json")

	previous := &models.DiscoveryCheckpoint{
		BaseURL:  server.URL,
		NextPage: 3,
		URLs:     []string{server.URL + "/nha-dat-ban/old"},
	}
	if err := previous.SaveToFile(checkpoint); err != nil {
		t.Fatal(err)
	}

	d := newTestDiscoverer(cfg, checkpoint)
	urls, err := d.Discover(NewStopSignal(context.Background()), true)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if got := server.pages(); !reflect.DeepEqual(got, []int{3, 4}) {
		t.Errorf("请求的页 = %v, want [3 4]", got)
	}
	want := []string{
		server.URL + "/nha-dat-ban/old",
		server.URL + "/nha-dat-ban/p3",
		server.URL + "/nha-dat-ban/p4",
		server.URL + "/nha-dat-ban/p5",
	}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("Discover() = %v, want %v", urls, want)
	}
}

func TestDiscoverer_IgnoresCheckpointForOtherSite(t *testing.T) {
	server := newListingServer(t, cardsPage)
	cfg := testDiscoveryConfig(server.URL, 2)
	checkpoint := filepath.Join(t.TempDir(), "discovery_checkpoint.json")

	other := &models.DiscoveryCheckpoint{BaseURL: "https://other.vn", NextPage: 2}
	if err := other.SaveToFile(checkpoint); err != nil {
		t.Fatal(err)
	}

	d := newTestDiscoverer(cfg, checkpoint)
	d.Discover(NewStopSignal(context.Background()), true)

	if got := server.pages(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("请求的页 = %v, want [1 2]", got)
	}
}

func TestDiscoverer_StoppedBeforeStart(t *testing.T) {
	server := newListingServer(t, cardsPage)
	cfg := testDiscoveryConfig(server.URL, 3)

	stop := NewStopSignal(context.Background())
	stop.Stop(models.ErrInterrupted)

	urls, err := newTestDiscoverer(cfg, "").Discover(stop, false)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(urls) != 0 || len(server.pages()) != 0 {
		t.Errorf("停止后不应发起请求: urls=%v pages=%v", urls, server.pages())
	}
}

type staticHeaders http.Header

func (h staticHeaders) GetHeaders() (http.Header, error) { return http.Header(h), nil }

type fixedUA string

func (u fixedUA) RandomUserAgent() string { return string(u) }

func TestDiscoverer_FetchPageHeaders(t *testing.T) {
	server := newListingServer(t, cardsPage)
	cfg := testDiscoveryConfig(server.URL, 1)

	headers := http.Header{}
	headers.Set("Accept-Language", "vi-VN,vi;q=0.9")
	d := NewDiscoverer(cfg, "", staticHeaders(headers), fixedUA("Mozilla/5.0 test"))

	links, err := d.FetchPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(links) != 3 {
		t.Errorf("FetchPage() = %v, want 3个卡片链接", links)
	}

	got := server.headers[0]
	if got.Get("Accept-Language") != "vi-VN,vi;q=0.9" {
		t.Errorf("Accept-Language = %q", got.Get("Accept-Language"))
	}
	if got.Get("User-Agent") != "Mozilla/5.0 test" {
		t.Errorf("User-Agent = %q", got.Get("User-Agent"))
	}
}

func TestDiscoverer_FetchPageErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, page int)
		wantErr error
	}{
		{
			name:    "HTTP错误",
			handler: func(w http.ResponseWriter, page int) { w.WriteHeader(http.StatusForbidden) },
			wantErr: models.ErrHTTPStatus,
		},
		{
			name:    "没有卡片",
			handler: func(w http.ResponseWriter, page int) { fmt.Fprint(w, `<html><body>Không có kết quả</body></html>`) },
			wantErr: models.ErrEmptyPage,
		},
		{
			name:    "空响应体",
			handler: func(w http.ResponseWriter, page int) { w.WriteHeader(http.StatusOK) },
			wantErr: models.ErrEmptyPage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newListingServer(t, tt.handler)
			d := NewDiscoverer(testDiscoveryConfig(server.URL, 1), "", nil, nil)

			_, err := d.FetchPage(context.Background(), 1)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchPage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDiscoverer_FetchPageCancelled(t *testing.T) {
	server := newListingServer(t, func(w http.ResponseWriter, page int) {
		time.Sleep(200 * time.Millisecond)
		cardsPage(w, page)
	})
	d := NewDiscoverer(testDiscoveryConfig(server.URL, 1), "", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.FetchPage(ctx, 1); !errors.Is(err, models.ErrCancelled) {
		t.Errorf("FetchPage() error = %v, want ErrCancelled", err)
	}
}
