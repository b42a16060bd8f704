package cli

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/reimu-nue/s1st2md"
	"github.com/reimu-nue/s1st2md/internal/configsource"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type runtimeConfig struct {
	App        *s1st2md.Config
	InputFile  string
	InputPage  int
	NoPrompt   bool
	Debug      bool
	ConfigFile string
}

type runtimeConfigValues struct {
	s1st2md.Config `mapstructure:",squash"`
	InputFile      string `mapstructure:"input"`
	InputPage      int    `mapstructure:"input_page"`
	NoPrompt       bool   `mapstructure:"no_prompt"`
	Debug          bool   `mapstructure:"debug"`
}

func buildRuntimeConfig(cmd *cobra.Command, args []string) (*runtimeConfig, error) {
	v, err := configsource.NewViperForCommand(cmd, flagConfigFile)
	if err != nil {
		return nil, err
	}

	values := runtimeConfigValues{
		Config: *s1st2md.NewDefaultConfig(),
	}
	if err := v.Unmarshal(&values, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("反序列化配置失败: %w", err)
	}

	values.TID = strings.TrimSpace(values.TID)
	values.InputFile = strings.TrimSpace(values.InputFile)
	values.BaseURL = strings.TrimSpace(values.BaseURL)
	values.APIBaseURL = strings.TrimSpace(values.APIBaseURL)
	values.OutputDir = strings.TrimSpace(values.OutputDir)
	values.HTTPUserAgent = strings.TrimSpace(values.HTTPUserAgent)
	values.Username = strings.TrimSpace(values.Username)

	// 位置参数可以是TID或帖子URL
	if values.TID == "" && len(args) > 0 {
		values.TID = strings.TrimSpace(args[0])
	}
	if strings.Contains(values.TID, "/") || strings.Contains(values.TID, "tid=") {
		tid, err := s1st2md.ResolveTID(values.TID)
		if err != nil {
			return nil, err
		}
		values.TID = tid
	}

	cfg := &runtimeConfig{
		App:        &values.Config,
		InputFile:  values.InputFile,
		InputPage:  values.InputPage,
		NoPrompt:   values.NoPrompt,
		Debug:      values.Debug,
		ConfigFile: v.ConfigFileUsed(),
	}

	if err := validateRuntimeConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateRuntimeConfig(cfg *runtimeConfig) error {
	if cfg.App.TID == "" {
		return fmt.Errorf("必须指定帖子ID或帖子URL")
	}
	if cfg.App.HTTPTimeout <= 0 {
		return fmt.Errorf("timeout 必须大于 0")
	}
	if cfg.App.PostsPerPage <= 0 {
		return fmt.Errorf("posts-per-page 必须大于 0")
	}
	for _, format := range []string{cfg.App.LinkFormat, cfg.App.EmoteFormat} {
		if format != string(s1st2md.LinkFormatWiki) && format != string(s1st2md.LinkFormatStandard) {
			return fmt.Errorf("链接格式必须是 wiki 或 standard: %q", format)
		}
	}
	if cfg.InputPage < 0 {
		return fmt.Errorf("input-page 不能为负数")
	}
	return nil
}

func durationDecodeHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != durationType {
			return data, nil
		}

		switch value := data.(type) {
		case int:
			return time.Duration(value) * time.Second, nil
		case int64:
			return time.Duration(value) * time.Second, nil
		case float64:
			return time.Duration(value) * time.Second, nil
		case string:
			trimmed := strings.TrimSpace(value)
			if trimmed == "" {
				return time.Duration(0), nil
			}
			if strings.ContainsAny(trimmed, "hmsuµns") {
				parsed, err := time.ParseDuration(trimmed)
				if err != nil {
					return nil, err
				}
				return parsed, nil
			}
			return time.ParseDuration(trimmed + "s")
		default:
			return data, nil
		}
	}
}
