package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// EnvPrefix 环境变量前缀，如 MURMUR_REDIS_ADDR 覆盖 redis.addr
const EnvPrefix = "MURMUR"

// LoadConfig 从文件加载配置并填充到 Cfg，环境变量优先于文件
func LoadConfig() error {
	// .env 可选，不存在时忽略
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

// setDefaults 为 AutomaticEnv 注册键，同时给出单机可跑的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", "")
	v.SetDefault("server.reuse_port", false)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.remote_address", "")
	v.SetDefault("log.index", "murmur")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.op_timeout_ms", 500)
	v.SetDefault("mongo.url", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "murmur")
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.encryption_secret", "")
	v.SetDefault("security.media_token_ttl_minutes", 60)
	v.SetDefault("presence.ttl_seconds", 90)
	v.SetDefault("presence.ping_period_seconds", 30)
	v.SetDefault("presence.pong_wait_seconds", 60)
	v.SetDefault("presence.inbound_rps", 20)
	v.SetDefault("presence.inbound_burst", 40)
	v.SetDefault("minio.presign_minutes", 10)
	v.SetDefault("content.timeout_ms", 2000)
	v.SetDefault("supervisor.workers", 0)
	v.SetDefault("supervisor.binary", "./bin/murmur-api")
	v.SetDefault("supervisor.max_backoff_seconds", 30)
	v.SetDefault("supervisor.shutdown_grace_seconds", 30)
}
