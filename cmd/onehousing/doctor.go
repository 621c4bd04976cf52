package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/core"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/crawlers"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
)

var launchBrowser bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查运行环境",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("==============================================")
		fmt.Println("  onehousing 环境检查")
		fmt.Println("==============================================")
		fmt.Println()

		allOK := true

		fmt.Printf("✅ Go版本: %s\n", runtime.Version())
		fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

		// 配置
		if appConfig.ConfigFile != "" {
			fmt.Printf("✅ 配置文件: %s\n", appConfig.ConfigFile)
		} else {
			fmt.Println("⚠️  未找到config.yaml,使用默认配置")
		}

		// 数据目录可写
		if err := checkWritable(appConfig.Output.DataDir); err != nil {
			fmt.Printf("❌ 数据目录不可写: %v\n", err)
			allOK = false
		} else {
			fmt.Printf("✅ 数据目录: %s\n", appConfig.Output.DataDir)
		}

		// 系统资源
		monitor := crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
			SessionMemoryMB: int64(appConfig.Scrape.SessionMemoryMB),
		})
		snap := monitor.Snapshot()
		fmt.Printf("✅ CPU: %d核, 使用率 %.1f%%\n", snap.NumCPU, snap.CPUPercent)
		fmt.Printf("✅ 内存: 可用 %d MB / 共 %d MB (%s)\n",
			snap.AvailableMemory/(1024*1024), snap.TotalMemory/(1024*1024), snap.MemoryPressure)
		sessions := monitor.MaxSessions(appConfig.Scrape.MaxWorkers)
		if sessions < appConfig.Scrape.MaxWorkers {
			fmt.Printf("⚠️  当前资源只能支持 %d 个会话 (配置: %d)\n", sessions, appConfig.Scrape.MaxWorkers)
		} else {
			fmt.Printf("✅ 可运行会话数: %d\n", sessions)
		}

		// 浏览器
		if path, found := launcher.LookPath(); found {
			fmt.Printf("✅ 浏览器: %s\n", path)
		} else {
			fmt.Println("⚠️  未找到本地Chromium,首次运行时rod会自动下载")
		}
		if launchBrowser {
			if err := checkLaunch(); err != nil {
				fmt.Printf("❌ 浏览器启动失败: %v\n", err)
				allOK = false
			} else {
				fmt.Println("✅ 浏览器启动正常")
			}
		}

		// HTTP头部
		if headerManager, err := core.NewHeaderManager("", headers); err != nil {
			fmt.Printf("❌ HTTP头部参数无效: %v\n", err)
			allOK = false
		} else if err := headerManager.LoadConfig(); err != nil {
			fmt.Printf("❌ HTTP头部配置加载失败: %v\n", err)
			allOK = false
		} else if err := headerManager.Validate(); err != nil {
			fmt.Printf("❌ HTTP头部配置无效: %v\n", err)
			allOK = false
		} else {
			fmt.Printf("✅ HTTP头部: %d个\n", len(headerManager.GetSafeHeaders()))
		}

		// 图床
		if appConfig.Cloudinary.Configured() {
			fmt.Printf("✅ Cloudinary: %s\n", appConfig.Cloudinary.CloudName)
		} else {
			fmt.Println("⚠️  Cloudinary未配置 - screenshots命令将不可用")
			fmt.Println("   在.env中设置 CLOUDINARY_CLOUD_NAME / CLOUDINARY_API_KEY / CLOUDINARY_API_SECRET")
		}

		fmt.Println()
		fmt.Println("==============================================")
		if !allOK {
			fmt.Println("❌ 环境检查失败,请解决上述问题。")
			return fmt.Errorf("环境检查未通过")
		}
		fmt.Println("✅ 环境检查通过!")
		return nil
	},
}

// checkWritable 创建目录并写入一个临时文件
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// checkLaunch 启动一个会话后立即关闭
func checkLaunch() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	factory := crawlers.NewRodSessionFactory(appConfig.DetailSessionConfig(), nil)
	session, err := factory.NewSession(ctx)
	if err != nil {
		return err
	}
	return session.Close()
}

func init() {
	doctorCmd.Flags().BoolVar(&launchBrowser, "launch", false, "实际启动一次浏览器")
}
