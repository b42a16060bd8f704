package s1st2md

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// FSDownloadSink 把队列中的图片下载到输出目录下的相对路径
type FSDownloadSink struct {
	client     *http.Client
	outputDir  string
	userAgent  string
	maxRetries uint
	retryDelay time.Duration
}

// NewFSDownloadSink 创建新的文件系统下载器
func NewFSDownloadSink(cfg *Config) *FSDownloadSink {
	maxRetries := cfg.HTTPMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.HTTPRetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &FSDownloadSink{
		client:     &http.Client{Timeout: cfg.HTTPTimeout},
		outputDir:  cfg.OutputDir,
		userAgent:  cfg.HTTPUserAgent,
		maxRetries: uint(maxRetries),
		retryDelay: retryDelay,
	}
}

// EnqueueDownload 下载单个图片并写入destPath对应的本地文件
func (s *FSDownloadSink) EnqueueDownload(ctx context.Context, url, destPath string) error {
	target := filepath.Join(s.outputDir, filepath.FromSlash(destPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return NewDownloadError("无法创建图片目录", err)
	}

	err := retry.Do(
		func() error {
			return s.downloadOnce(ctx, url, target)
		},
		retry.Attempts(s.maxRetries),
		retry.Delay(s.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return NewDownloadError(fmt.Sprintf("下载失败: %s", url), err)
	}
	return nil
}

func (s *FSDownloadSink) downloadOnce(ctx context.Context, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP状态码 %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Unrecoverable(err)
		}
		return err
	}

	f, err := os.Create(target)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return f.Close()
}
