package s1st2md

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// RenderedPost 一个已转换为Markdown的帖子
type RenderedPost struct {
	FloorLabel string
	Author     string
	Timestamp  string
	Body       string
	Rating     string
}

// Emitter 把渲染结果写成Markdown文件
type Emitter struct {
	outputDir string
}

// NewEmitter 创建新的文件输出器
func NewEmitter(outputDir string) *Emitter {
	if outputDir == "" {
		outputDir = "."
	}
	return &Emitter{outputDir: outputDir}
}

// DocumentHeader 生成导出文档的公共头部
func DocumentHeader(meta *ThreadMeta) string {
	return fmt.Sprintf("# %s\n\n**版块:** %s\n**原帖:** <%s>\n\n", meta.Title, meta.Section, meta.URL)
}

// Emit 输出Markdown文件。未设置每文件帖子数时写单个文件，
// 否则按块切分，文件序号从StartFile起编。返回写出的文件路径。
func (e *Emitter) Emit(meta *ThreadMeta, posts []RenderedPost, opts ExportOptions) ([]string, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return nil, NewExportError("无法创建输出目录", err)
	}

	header := DocumentHeader(meta)

	if opts.PostsPerFile == nil || *opts.PostsPerFile <= 0 {
		path, err := e.writeDocument(meta.Title, header, posts)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	chunks := lo.Chunk(posts, *opts.PostsPerFile)
	baseNumber := 1
	if opts.StartFile != nil {
		baseNumber = *opts.StartFile
	}

	written := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		name := fmt.Sprintf("%s - Page %d", meta.Title, baseNumber+i)
		path, err := e.writeDocument(name, header, chunk)
		if err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}

func (e *Emitter) writeDocument(name, header string, posts []RenderedPost) (string, error) {
	var b strings.Builder
	b.WriteString(header)
	for _, post := range posts {
		b.WriteString(renderPost(post))
	}

	filename := sanitizeFilename(name) + ".md"
	path := filepath.Join(e.outputDir, filename)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", NewExportError(fmt.Sprintf("无法写入文件: %s", filename), err)
	}

	images, links := countMarkdownRefs(b.String())
	slog.Info("生成文件", "file", filename, "posts", len(posts), "images", images, "links", links)
	return path, nil
}

func renderPost(post RenderedPost) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n---\n\n## %s | %s | %s\n\n%s\n\n",
		post.FloorLabel, post.Author, post.Timestamp, strings.TrimSpace(post.Body))
	if post.Rating != "" {
		b.WriteString(post.Rating)
		b.WriteString("\n")
	}
	return b.String()
}

// countMarkdownRefs 统计文档中的图片和链接数量，仅用于日志汇总
func countMarkdownRefs(source string) (images, links int) {
	root := goldmark.New().Parser().Parse(gmtext.NewReader([]byte(source)))
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch n.Kind() {
			case ast.KindImage:
				images++
			case ast.KindLink, ast.KindAutoLink:
				links++
			}
		}
		return ast.WalkContinue, nil
	})
	return images, links
}
