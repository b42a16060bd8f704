package s1st2md

import (
	"time"
)

// Config 应用配置
type Config struct {
	// 输入配置
	TID     string `toml:"tid" mapstructure:"tid"`
	BaseURL string `toml:"base_url" mapstructure:"base_url"`
	// APIBaseURL is the official app API endpoint used to reveal gated posts.
	APIBaseURL string `toml:"api_base_url" mapstructure:"api_base_url"`

	// 输出配置
	OutputDir string `toml:"output_dir" mapstructure:"output_dir"`

	// 楼层与分页选项
	StartFloor   int    `toml:"start_floor" mapstructure:"start_floor"`
	EndFloor     int    `toml:"end_floor" mapstructure:"end_floor"`
	PostsPerPage int    `toml:"posts_per_page" mapstructure:"posts_per_page"`
	PostsPerFile int    `toml:"posts_per_file" mapstructure:"posts_per_file"`
	StartFile    int    `toml:"start_file" mapstructure:"start_file"`
	EndFile      int    `toml:"end_file" mapstructure:"end_file"`
	NoImages     bool   `toml:"no_images" mapstructure:"no_images"`
	LinkFormat   string `toml:"link_format" mapstructure:"link_format"`
	EmoteFormat  string `toml:"emote_format" mapstructure:"emote_format"`

	// HTTP配置
	HTTPTimeout    time.Duration     `toml:"timeout" mapstructure:"timeout"`
	HTTPUserAgent  string            `toml:"user_agent" mapstructure:"user_agent"`
	HTTPMaxRetries int               `toml:"max_retries" mapstructure:"max_retries"`
	HTTPRetryDelay time.Duration     `toml:"retry_delay" mapstructure:"retry_delay"`
	HTTPPageDelay  time.Duration     `toml:"page_delay" mapstructure:"page_delay"`
	HTTPHeaders    map[string]string `toml:"custom_headers" mapstructure:"custom_headers"`

	// 登录配置（可选，否则交互输入）
	Username   string `toml:"username" mapstructure:"username"`
	Password   string `toml:"password" mapstructure:"password"`
	QuestionID string `toml:"question_id" mapstructure:"question_id"`
	Answer     string `toml:"answer" mapstructure:"answer"`
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://bbs.saraba1st.com",
		APIBaseURL:     "https://app.stage1st.com/2b/api/app",
		OutputDir:      ".",
		PostsPerPage:   40,
		LinkFormat:     string(LinkFormatWiki),
		EmoteFormat:    string(LinkFormatWiki),
		HTTPTimeout:    30 * time.Second,
		HTTPUserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		HTTPMaxRetries: 3,
		HTTPRetryDelay: 2 * time.Second,
		HTTPPageDelay:  500 * time.Millisecond,
		HTTPHeaders:    make(map[string]string),
	}
}

// ExportOptions converts flat config values to per-run options. Zero values
// of the numeric fields mean "not requested".
func (c *Config) ExportOptions() ExportOptions {
	opts := DefaultExportOptions()
	if c.StartFloor > 0 {
		opts.StartFloor = IntPtr(c.StartFloor)
	}
	if c.EndFloor > 0 {
		opts.EndFloor = IntPtr(c.EndFloor)
	}
	if c.PostsPerPage > 0 {
		opts.PostsPerPage = c.PostsPerPage
	}
	if c.PostsPerFile > 0 {
		opts.PostsPerFile = IntPtr(c.PostsPerFile)
	}
	if c.StartFile > 0 {
		opts.StartFile = IntPtr(c.StartFile)
	}
	if c.EndFile > 0 {
		opts.EndFile = IntPtr(c.EndFile)
	}
	opts.DownloadImages = !c.NoImages
	opts.LinkFormat = ParseLinkFormat(c.LinkFormat)
	opts.EmoteFormat = ParseLinkFormat(c.EmoteFormat)
	return opts
}
