package s1st2md

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// SessionStore persists the opaque app session token between runs.
type SessionStore interface {
	Get() (string, error)
	Set(token string) error
	Remove() error
}

// CredentialSource obtains login credentials. ok=false means the user
// declined, which cancels the authentication attempt.
type CredentialSource interface {
	Credentials(ctx context.Context) (creds Credentials, ok bool, err error)
}

type sessionFile struct {
	SID       string    `toml:"sid"`
	UpdatedAt time.Time `toml:"updated_at"`
}

// FileSessionStore keeps the token in a TOML file under the user data dir.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore creates a store rooted at the given file path.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// DefaultSessionFile returns the default token location.
func DefaultSessionFile(app string) string {
	return filepath.Join(DefaultDataDir(app), "session.toml")
}

func (s *FileSessionStore) Get() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("读取会话文件失败: %w", err)
	}
	var f sessionFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("解析会话文件失败: %w", err)
	}
	return f.SID, nil
}

func (s *FileSessionStore) Set(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("创建会话目录失败: %w", err)
	}
	data, err := toml.Marshal(sessionFile{SID: token, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}
	return os.WriteFile(s.path, data, 0600)
}

func (s *FileSessionStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// StaticCredentials serves credentials supplied via config or flags.
type StaticCredentials struct {
	Creds Credentials
}

func (s StaticCredentials) Credentials(context.Context) (Credentials, bool, error) {
	if s.Creds.Username == "" || s.Creds.Password == "" {
		return Credentials{}, false, nil
	}
	return s.Creds, true, nil
}

// PromptCredentials reads credentials interactively. An empty username
// cancels the login.
type PromptCredentials struct {
	In  io.Reader
	Out io.Writer
}

func (p PromptCredentials) Credentials(context.Context) (Credentials, bool, error) {
	in := p.In
	if in == nil {
		in = os.Stdin
	}
	out := p.Out
	if out == nil {
		out = os.Stderr
	}

	reader := bufio.NewReader(in)
	fmt.Fprintln(out, "通过官方app接口查看不可见内容，需要单独登录（直接回车取消）")

	username, err := promptLine(reader, out, "用户名: ")
	if err != nil {
		return Credentials{}, false, err
	}
	if username == "" {
		return Credentials{}, false, nil
	}
	password, err := promptLine(reader, out, "密码: ")
	if err != nil {
		return Credentials{}, false, err
	}
	questionID, err := promptLine(reader, out, "安全提问ID(未设置请回车): ")
	if err != nil {
		return Credentials{}, false, err
	}
	creds := Credentials{Username: username, Password: password, QuestionID: questionID}
	if questionID != "" && questionID != "0" {
		answer, err := promptLine(reader, out, "答案: ")
		if err != nil {
			return Credentials{}, false, err
		}
		creds.Answer = answer
	}
	return creds, true, nil
}

func promptLine(reader *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
