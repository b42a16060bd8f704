package s1st2md

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Exporter 串联加载、过滤、转换、下载和输出的完整导出流程。
// 同一实例上的并发导出会被拒绝。
type Exporter struct {
	cfg     *Config
	loader  *ThreadLoader
	sink    DownloadSink
	emitter *Emitter
	running atomic.Bool
}

// NewExporter 创建新的导出编排器
func NewExporter(cfg *Config, loader *ThreadLoader, sink DownloadSink, emitter *Emitter) *Exporter {
	return &Exporter{cfg: cfg, loader: loader, sink: sink, emitter: emitter}
}

// Export 执行一次完整导出，返回写出的文件路径
func (e *Exporter) Export(ctx context.Context, tid string, opts ExportOptions, input *LocalPage, status StatusFunc) ([]string, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrExportRunning
	}
	defer e.running.Store(false)

	result, err := e.loader.Load(ctx, tid, opts, input, status)
	if err != nil {
		return nil, err
	}

	floors := ResolveFloorRange(opts)
	rangeActive := opts.RangeRequested() ||
		floors.End != nil || (floors.Start != nil && *floors.Start > 1)

	var selected []Post
	for _, post := range result.Posts {
		if floors.Contains(post.FloorNumber, rangeActive) {
			selected = append(selected, post)
		} else if post.FloorNumber == nil {
			slog.Warn("楼层无法解析且指定了范围，跳过帖子", "pid", post.ID, "label", post.FloorLabel)
		}
	}
	slog.Info("楼层过滤完成", "kept", len(selected), "total", len(result.Posts))

	assets := NewAssetRegistry(tid, opts.LinkFormat, opts.DownloadImages)
	conv, err := NewDocumentConverter(assets, opts.EmoteFormat, e.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	rendered := make([]RenderedPost, 0, len(selected))
	for i, post := range selected {
		if status != nil {
			status("转换帖子", i+1, len(selected))
		}
		body, err := conv.ConvertPost(post.Content)
		if err != nil {
			slog.Warn("帖子转换失败", "pid", post.ID, "error", err)
			body = "[内容无法加载或已被删除]"
		}
		rp := RenderedPost{
			FloorLabel: post.FloorLabel,
			Author:     post.Author,
			Timestamp:  post.Timestamp,
			Body:       body,
		}
		if post.Rating != nil {
			rp.Rating = post.Rating.Markdown()
		}
		rendered = append(rendered, rp)
	}

	if err := assets.Drain(ctx, e.sink, status); err != nil {
		return nil, err
	}
	if failures := assets.Failures(); len(failures) > 0 {
		slog.Warn("部分图片下载失败", "count", len(failures))
		for _, f := range failures {
			slog.Warn("下载失败", "url", f.URL, "path", f.Path, "error", f.Error)
		}
	}

	files, err := e.emitter.Emit(result.Meta, rendered, opts)
	if err != nil {
		return nil, err
	}
	slog.Info("导出完成", "tid", tid, "files", len(files), "posts", len(rendered))
	return files, nil
}
