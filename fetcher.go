package s1st2md

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// PageFetcher 抓取帖子页面HTML
type PageFetcher struct {
	base       *colly.Collector
	baseURL    string
	headers    map[string]string
	maxRetries uint
	retryDelay time.Duration
	limiter    *rate.Limiter
}

// NewPageFetcher 创建新的页面抓取器
func NewPageFetcher(cfg *Config) *PageFetcher {
	c := colly.NewCollector(
		colly.UserAgent(cfg.HTTPUserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(cfg.HTTPTimeout)

	pageDelay := cfg.HTTPPageDelay
	if pageDelay <= 0 {
		pageDelay = 500 * time.Millisecond
	}

	maxRetries := cfg.HTTPMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.HTTPRetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	return &PageFetcher{
		base:       c,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		headers:    cfg.HTTPHeaders,
		maxRetries: uint(maxRetries),
		retryDelay: retryDelay,
		limiter:    rate.NewLimiter(rate.Every(pageDelay), 1),
	}
}

// ThreadPageURL 构建帖子指定页的URL
func (f *PageFetcher) ThreadPageURL(tid string, page int) string {
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf("%s/2b/thread-%s-%d-1.html", f.baseURL, tid, page)
}

// FetchThreadPage 抓取帖子的一页HTML
func (f *PageFetcher) FetchThreadPage(ctx context.Context, tid string, page int) (string, error) {
	return f.FetchURL(ctx, f.ThreadPageURL(tid, page))
}

// FetchURL 抓取指定URL，带限速和重试
func (f *PageFetcher) FetchURL(ctx context.Context, targetURL string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var body string
	err := retry.Do(
		func() error {
			html, err := f.fetchOnce(targetURL)
			if err != nil {
				return err
			}
			body = html
			return nil
		},
		retry.Attempts(f.maxRetries),
		retry.Delay(f.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("页面抓取失败，重试中", "url", targetURL, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return "", NewNetworkError(fmt.Sprintf("抓取页面失败: %s", targetURL), err)
	}
	return body, nil
}

// fetchOnce 执行单次抓取。Clone不复制回调，因此每次都重新注册。
func (f *PageFetcher) fetchOnce(targetURL string) (string, error) {
	c := f.base.Clone()

	if len(f.headers) > 0 {
		c.OnRequest(func(r *colly.Request) {
			for key, value := range f.headers {
				r.Headers.Set(key, value)
			}
		})
	}

	var body []byte
	var status int
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(targetURL); err != nil {
		// 4xx不值得重试
		if status >= 400 && status < 500 {
			return "", retry.Unrecoverable(fmt.Errorf("HTTP错误 %d: %w", status, err))
		}
		return "", err
	}

	if len(body) == 0 {
		return "", fmt.Errorf("响应内容为空: %s", targetURL)
	}
	return string(body), nil
}
