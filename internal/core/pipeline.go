package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/cleaning"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// PipelineOptions 完整流程选项
type PipelineOptions struct {
	ResumeDiscovery bool
	Sequential      bool
	Fresh           bool
}

// StageResult 单个阶段的结果
type StageResult struct {
	Name     string
	Success  bool
	Skipped  bool
	Error    error
	Duration float64
	Report   *models.RunReport // 清洗阶段为nil
}

// PipelineSummary 完整流程摘要
type PipelineSummary struct {
	Stages        []StageResult
	TotalDuration float64
	StopReason    string
}

// Reports 返回各阶段产生的运行报告
func (s *PipelineSummary) Reports() []*models.RunReport {
	var reports []*models.RunReport
	for _, stage := range s.Stages {
		if stage.Report != nil {
			reports = append(reports, stage.Report)
		}
	}
	return reports
}

// Pipeline 完整流程: 发现 → 详情 → 截图上传 → 清洗
// 停止信号置位后剩余阶段全部跳过
type Pipeline struct {
	svc  *Services
	opts PipelineOptions
}

// NewPipeline 创建完整流程
func NewPipeline(svc *Services, opts PipelineOptions) *Pipeline {
	return &Pipeline{svc: svc, opts: opts}
}

// Run 依次执行各阶段,返回第一个阶段错误
func (p *Pipeline) Run() (*PipelineSummary, error) {
	utils.Info("🚀 开始完整流程: 发现 → 详情 → 截图上传 → 清洗")
	startTime := time.Now()
	summary := &PipelineSummary{}

	var firstErr error
	record := func(result StageResult) {
		if result.Error != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", result.Name, result.Error)
		}
		summary.Stages = append(summary.Stages, result)
	}

	record(p.stage("发现与详情", func() (*models.RunReport, error) {
		return p.scrape()
	}))

	if p.svc.Uploader == nil {
		utils.Warn("Cloudinary未配置,跳过截图上传")
		record(StageResult{Name: "截图上传", Skipped: true})
	} else {
		record(p.stage("截图上传", func() (*models.RunReport, error) {
			return RunScreenshots(p.svc, ScreenshotOptions{})
		}))
	}

	record(p.stage("数据清洗", func() (*models.RunReport, error) {
		cfg := p.svc.Config
		_, err := cleaning.NewCleaner(cfg.DetailsPath(), cfg.ImageMapPath(), cfg.CleanedPath()).Run()
		return nil, err
	}))

	summary.TotalDuration = time.Since(startTime).Seconds()
	if reason := p.svc.Stop.Reason(); reason != nil {
		summary.StopReason = reason.Error()
	}

	p.printSummary(summary)
	return summary, firstErr
}

// scrape 用一个协调器完成发现和详情抓取
func (p *Pipeline) scrape() (*models.RunReport, error) {
	cfg := p.svc.Config
	coordinator := NewCoordinator(CoordinatorOptions{
		Config:          cfg.Scrape,
		URLsPath:        cfg.URLsPath(),
		DetailsPath:     cfg.DetailsPath(),
		Sequential:      p.opts.Sequential,
		Fresh:           p.opts.Fresh,
		ResumeDiscovery: p.opts.ResumeDiscovery,
		ShowProgress:    p.svc.ShowProgress,
	}, p.svc.Stop, p.svc.Discoverer, p.svc.DetailSessions)
	coordinator.SetResourceMonitor(p.svc.Monitor)
	return coordinator.RunFull()
}

// stage 执行一个阶段;停止信号已置位时跳过
func (p *Pipeline) stage(name string, run func() (*models.RunReport, error)) StageResult {
	result := StageResult{Name: name}
	if p.svc.Stop.Stopped() {
		utils.Warnf("已停止,跳过阶段: %s", name)
		result.Skipped = true
		return result
	}

	utils.Infof("\n==================== %s ====================", name)
	startTime := time.Now()
	report, err := run()
	result.Duration = time.Since(startTime).Seconds()
	result.Report = report

	if err != nil && !errors.Is(err, models.ErrInterrupted) {
		utils.Errorf("❌ 阶段失败 [%s]: %v", name, err)
		result.Error = err
		return result
	}
	result.Success = !p.svc.Stop.Stopped()
	return result
}

// printSummary 打印流程摘要
func (p *Pipeline) printSummary(summary *PipelineSummary) {
	utils.Info("\n==================================================")
	utils.Info("📊 完整流程摘要")
	utils.Info("==================================================")
	for _, stage := range summary.Stages {
		switch {
		case stage.Skipped:
			utils.Infof("⏭️  %s: 跳过", stage.Name)
		case stage.Error != nil:
			utils.Infof("❌ %s: 失败 (%.2f秒) %v", stage.Name, stage.Duration, stage.Error)
		case stage.Success:
			utils.Infof("✅ %s: 完成 (%.2f秒)", stage.Name, stage.Duration)
		default:
			utils.Infof("⚠️  %s: 中途停止 (%.2f秒)", stage.Name, stage.Duration)
		}
	}
	if summary.StopReason != "" {
		utils.Warnf("停止原因: %s", summary.StopReason)
	}
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")
}
