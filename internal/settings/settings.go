package settings

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
)

type Config struct {
}

// GetConfig loads configuration once per process. Values come from an
// optional config/cfg.yaml and WAIFU_-prefixed environment variables, env
// winning (the bucket token is a secret and should stay in the env).
func GetConfig() *Config {
	once.Do(func() {
		viper.AddConfigPath("config")
		viper.AddConfigPath("../../config")
		viper.SetConfigType("yaml")
		viper.SetConfigName("cfg")
		viper.SetEnvPrefix("waifu")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
		setDefaults()
		_ = viper.ReadInConfig()
		instance = &Config{}
	})
	return instance
}

func setDefaults() {
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.log_level", 0)
	viper.SetDefault("server.cloudflare_ips", false)
	viper.SetDefault("storage.tmp_root", "tmp")
	viper.SetDefault("upload.chunk_size", 5*1024*1024)
	viper.SetDefault("upload.max_assemble_size", 0)
	viper.SetDefault("vault.endpoint", "https://waifuvault.moe")
	viper.SetDefault("vault.bucket_token", "")
}

func (c *Config) Get(key string) any {
	return viper.Get(key)
}

func (c *Config) GetString(key string) string {
	return viper.GetString(key)
}

func (c *Config) GetInt(key string) int {
	return viper.GetInt(key)
}

func (c *Config) GetInt64(key string) int64 {
	return viper.GetInt64(key)
}

func (c *Config) GetBool(key string) bool {
	return viper.GetBool(key)
}
