package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/reimu-nue/s1st2md"
	"github.com/spf13/cobra"
)

var (
	flagConfigFile string
	flagDebug      bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "s1st2md [TID|URL]",
	Short: "Stage1st论坛帖子导出工具 - 抓取帖子并转换为Markdown",
	Long: `s1st2md 抓取Stage1st论坛的帖子内容并转换为Markdown格式。
支持功能：
- 通过帖子ID或帖子URL抓取完整帖子
- 楼层范围过滤与按文件分卷输出
- 通过官方app接口解锁被屏蔽的帖子内容
- 下载帖子中的图片附件并重写为本地引用`,
	Example: `  # 导出整个帖子
  s1st2md 2246666
  s1st2md https://bbs.saraba1st.com/2b/thread-2246666-1-1.html

  # 只导出51-150楼
  s1st2md 2246666 --start-floor=51 --end-floor=150

  # 每100楼一个文件，从第2个文件开始
  s1st2md 2246666 --posts-per-file=100 --start-file=2

  # 复用已保存的页面HTML作为起始页
  s1st2md 2246666 --input=page3.html --input-page=3`,
	RunE: runExport,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		s1st2md.InitLogger(flagDebug)
	},
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaults := s1st2md.NewDefaultConfig()

	flags := rootCmd.PersistentFlags()
	flags.String("tid", "", "帖子ID (也可以作为位置参数)")
	flags.String("base-url", defaults.BaseURL, "论坛基础URL")
	flags.String("api-base-url", defaults.APIBaseURL, "官方app接口地址")
	flags.String("output", defaults.OutputDir, "输出目录")
	flags.Int("start-floor", 0, "起始楼层")
	flags.Int("end-floor", 0, "结束楼层")
	flags.Int("posts-per-page", defaults.PostsPerPage, "论坛每页楼层数")
	flags.Int("posts-per-file", 0, "每个输出文件的楼层数 (0表示单文件)")
	flags.Int("start-file", 0, "起始文件序号")
	flags.Int("end-file", 0, "结束文件序号")
	flags.Bool("no-images", false, "不下载图片，保留原始链接")
	flags.String("link-format", defaults.LinkFormat, "本地图片链接格式 (wiki|standard)")
	flags.String("emote-format", defaults.EmoteFormat, "表情链接格式 (wiki|standard)")
	flags.Int("timeout", 30, "HTTP请求超时(秒)")
	flags.Int("max-retries", defaults.HTTPMaxRetries, "请求失败最大重试次数")
	flags.Int("retry-delay", 2, "重试间隔(秒)")
	flags.String("page-delay", defaults.HTTPPageDelay.String(), "翻页间隔")
	flags.String("username", "", "论坛用户名 (解锁屏蔽内容用)")
	flags.String("password", "", "论坛密码")
	flags.String("question-id", "", "安全提问ID")
	flags.String("answer", "", "安全提问答案")
	flags.String("input", "", "本地HTML文件，作为起始页代替网络抓取")
	flags.Int("input-page", 0, "本地HTML对应的页码")
	flags.Bool("no-prompt", false, "禁用交互式登录提示")
	flags.StringVar(&flagConfigFile, "config", "", "配置文件路径")
	flags.BoolVar(&flagDebug, "debug", false, "启用调试日志")
}

// Execute 执行命令行程序
func Execute() error {
	return rootCmd.Execute()
}

func runExport(cmd *cobra.Command, args []string) error {
	rc, err := buildRuntimeConfig(cmd, args)
	if err != nil {
		return err
	}
	cfg := rc.App
	if rc.ConfigFile != "" {
		slog.Debug("使用配置文件", "path", rc.ConfigFile)
	}

	store := s1st2md.NewOptionStore(filepath.Join(s1st2md.DefaultDataDir("s1st2md"), "threads"))
	stored, err := store.Load(cfg.TID)
	if err != nil {
		slog.Warn("读取已保存的导出选项失败", "tid", cfg.TID, "error", err)
		stored = s1st2md.DefaultExportOptions()
	}
	opts := mergeOptions(stored, cfg.ExportOptions(), cmd)

	var input *s1st2md.LocalPage
	if rc.InputFile != "" {
		data, err := os.ReadFile(rc.InputFile)
		if err != nil {
			return fmt.Errorf("读取输入HTML文件失败: %w", err)
		}
		input = &s1st2md.LocalPage{HTML: string(data), Page: rc.InputPage}
	}

	sessions := s1st2md.NewFileSessionStore(s1st2md.DefaultSessionFile("s1st2md"))
	api := s1st2md.NewAppClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	unlocker := s1st2md.NewContentUnlocker(api, sessions, credentialSource(cfg, rc.NoPrompt), opts.PostsPerPage)
	loader := s1st2md.NewThreadLoader(s1st2md.NewPageFetcher(cfg), unlocker)
	exporter := s1st2md.NewExporter(cfg, loader, s1st2md.NewFSDownloadSink(cfg), s1st2md.NewEmitter(cfg.OutputDir))

	files, err := exporter.Export(cmd.Context(), cfg.TID, opts, input, statusPrinter())
	if err != nil {
		return fmt.Errorf("导出失败: %w", err)
	}

	if err := store.Save(cfg.TID, opts); err != nil {
		slog.Warn("保存导出选项失败", "tid", cfg.TID, "error", err)
	}

	for _, file := range files {
		fmt.Printf("✓ %s\n", file)
	}
	return nil
}

// mergeOptions 以保存过的选项为基线，命令行显式指定的字段优先
func mergeOptions(stored, fresh s1st2md.ExportOptions, cmd *cobra.Command) s1st2md.ExportOptions {
	opts := stored
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			f = cmd.InheritedFlags().Lookup(name)
		}
		return f != nil && f.Changed
	}

	if changed("start-floor") || opts.StartFloor == nil {
		opts.StartFloor = fresh.StartFloor
	}
	if changed("end-floor") || opts.EndFloor == nil {
		opts.EndFloor = fresh.EndFloor
	}
	if changed("posts-per-page") || opts.PostsPerPage <= 0 {
		opts.PostsPerPage = fresh.PostsPerPage
	}
	if changed("posts-per-file") || opts.PostsPerFile == nil {
		opts.PostsPerFile = fresh.PostsPerFile
	}
	if changed("start-file") || opts.StartFile == nil {
		opts.StartFile = fresh.StartFile
	}
	if changed("end-file") || opts.EndFile == nil {
		opts.EndFile = fresh.EndFile
	}
	if changed("no-images") {
		opts.DownloadImages = fresh.DownloadImages
	}
	if changed("link-format") {
		opts.LinkFormat = fresh.LinkFormat
	}
	if changed("emote-format") {
		opts.EmoteFormat = fresh.EmoteFormat
	}
	return opts
}

func credentialSource(cfg *s1st2md.Config, noPrompt bool) s1st2md.CredentialSource {
	static := s1st2md.StaticCredentials{Creds: s1st2md.Credentials{
		Username:   cfg.Username,
		Password:   cfg.Password,
		QuestionID: cfg.QuestionID,
		Answer:     cfg.Answer,
	}}
	if cfg.Username != "" || noPrompt {
		return static
	}
	return s1st2md.PromptCredentials{}
}

// statusPrinter 把进度汇成阶段性输出，避免每项刷一行
func statusPrinter() s1st2md.StatusFunc {
	lastStage := ""
	return func(stage string, current, total int) {
		if stage != lastStage {
			fmt.Fprintf(os.Stderr, "%s (%d/%d)...\n", stage, current, total)
			lastStage = stage
		}
		slog.Debug("进度", "stage", stage, "current", current, "total", total)
	}
}
