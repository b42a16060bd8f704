package configsource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reimu-nue/s1st2md"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewViperForCommand(cmd *cobra.Command, configFlagValue string) (*viper.Viper, error) {
	v := viper.New()
	applyViperDefaults(v)

	v.SetEnvPrefix("S1ST2MD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := bindViperFlags(v, cmd); err != nil {
		return nil, err
	}

	configPath, explicit, err := resolveConfigFilePath(cmd, configFlagValue)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok && !explicit {
				return v, nil
			}
			return nil, fmt.Errorf("读取配置文件失败 %q: %w", configPath, err)
		}
	}

	return v, nil
}

func applyViperDefaults(v *viper.Viper) {
	defaultConfig := s1st2md.NewDefaultConfig()
	v.SetDefault("tid", defaultConfig.TID)
	v.SetDefault("base_url", defaultConfig.BaseURL)
	v.SetDefault("api_base_url", defaultConfig.APIBaseURL)
	v.SetDefault("output_dir", defaultConfig.OutputDir)
	v.SetDefault("start_floor", defaultConfig.StartFloor)
	v.SetDefault("end_floor", defaultConfig.EndFloor)
	v.SetDefault("posts_per_page", defaultConfig.PostsPerPage)
	v.SetDefault("posts_per_file", defaultConfig.PostsPerFile)
	v.SetDefault("start_file", defaultConfig.StartFile)
	v.SetDefault("end_file", defaultConfig.EndFile)
	v.SetDefault("no_images", defaultConfig.NoImages)
	v.SetDefault("link_format", defaultConfig.LinkFormat)
	v.SetDefault("emote_format", defaultConfig.EmoteFormat)
	v.SetDefault("timeout", int(defaultConfig.HTTPTimeout.Seconds()))
	v.SetDefault("user_agent", defaultConfig.HTTPUserAgent)
	v.SetDefault("max_retries", defaultConfig.HTTPMaxRetries)
	v.SetDefault("retry_delay", int(defaultConfig.HTTPRetryDelay.Seconds()))
	v.SetDefault("page_delay", defaultConfig.HTTPPageDelay.String())
	v.SetDefault("username", defaultConfig.Username)
	v.SetDefault("password", defaultConfig.Password)
	v.SetDefault("question_id", defaultConfig.QuestionID)
	v.SetDefault("answer", defaultConfig.Answer)
}

func bindViperFlags(v *viper.Viper, cmd *cobra.Command) error {
	visited := make(map[string]struct{})
	var bindErr error
	bindFlag := func(f *pflag.Flag) {
		if f == nil || bindErr != nil {
			return
		}
		if _, ok := visited[f.Name]; ok {
			return
		}
		visited[f.Name] = struct{}{}
		configName := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(configName, f); err != nil {
			bindErr = fmt.Errorf("绑定 flag %q 到 key %q 失败: %w", f.Name, configName, err)
		}
	}

	cmd.Flags().VisitAll(bindFlag)
	cmd.InheritedFlags().VisitAll(bindFlag)
	if bindErr != nil {
		return bindErr
	}

	// Keep struct tag naming with the shorter --output flag.
	v.RegisterAlias("output_dir", "output")
	return nil
}

func resolveConfigFilePath(cmd *cobra.Command, configFlagValue string) (string, bool, error) {
	if flagChanged(cmd, "config") {
		path := strings.TrimSpace(configFlagValue)
		if path == "" {
			return "", true, errors.New("--config 不能为空")
		}
		return path, true, nil
	}

	if value := strings.TrimSpace(os.Getenv("S1ST2MD_CONFIG")); value != "" {
		return value, true, nil
	}

	candidates := []string{
		filepath.Join(".", "s1st2md.toml"),
	}
	if userConfigDir, err := os.UserConfigDir(); err == nil && userConfigDir != "" {
		candidates = append(candidates, filepath.Join(userConfigDir, "s1st2md", "config.toml"))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, false, nil
		}
	}

	return "", false, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Changed
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil {
		return f.Changed
	}
	return false
}
