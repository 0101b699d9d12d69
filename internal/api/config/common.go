package config

import "time"

// Config 配置主体
type Config struct {
	Server             ServerConfig       `mapstructure:"server"`
	Log                LogConfig          `mapstructure:"log"`
	DB                 DBConfig           `mapstructure:"database"`
	Redis              RedisConfig        `mapstructure:"redis"`
	Mongo              MongoConfig        `mapstructure:"mongo"`
	Security           SecurityConfig     `mapstructure:"security"`
	Presence           PresenceConfig     `mapstructure:"presence"`
	MinIO              MinIOConfig        `mapstructure:"minio"`
	Content            ContentConfig      `mapstructure:"content"`
	Kafka              KafkaConfig        `mapstructure:"kafka"`
	KafkaBlockConsumer KafkaBlockConsumer `mapstructure:"kafka_block_consumer"`
	Supervisor         SupervisorConfig   `mapstructure:"supervisor"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	WorkerID       string   `mapstructure:"worker_id"`
	ReusePort      bool     `mapstructure:"reuse_port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig 日志配置，RemoteAddress 为空时只输出到 stdout
type LogConfig struct {
	Level         string `mapstructure:"level"`
	RemoteAddress string `mapstructure:"remote_address"`
	Index         string `mapstructure:"index"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
}

type RedisConfig struct {
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	PoolSize    int    `mapstructure:"pool_size"`
	OpTimeoutMs int    `mapstructure:"op_timeout_ms"`
}

func (c RedisConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutMs) * time.Millisecond
}

type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// SecurityConfig 鉴权与加密
type SecurityConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"`
	EncryptionSecret     string `mapstructure:"encryption_secret"`
	MediaTokenTTLMinutes int    `mapstructure:"media_token_ttl_minutes"`
}

func (c SecurityConfig) MediaTokenTTL() time.Duration {
	return time.Duration(c.MediaTokenTTLMinutes) * time.Minute
}

// PresenceConfig 在线状态与心跳
type PresenceConfig struct {
	TTLSeconds        int     `mapstructure:"ttl_seconds"`
	PingPeriodSeconds int     `mapstructure:"ping_period_seconds"`
	PongWaitSeconds   int     `mapstructure:"pong_wait_seconds"`
	InboundRPS        float64 `mapstructure:"inbound_rps"`
	InboundBurst      int     `mapstructure:"inbound_burst"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	InternalEndpoint string `mapstructure:"internal_endpoint"`
	ExternalEndpoint string `mapstructure:"external_endpoint"`
	AccessKey        string `mapstructure:"access_key"`
	SecretKey        string `mapstructure:"secret_key"`
	MainBucket       string `mapstructure:"main_bucket"`
	InternalUseSSL   bool   `mapstructure:"internal_use_ssl"`
	PresignMinutes   int    `mapstructure:"presign_minutes"`
}

// ContentConfig 帖子/短视频内容服务
type ContentConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type KafkaConfig struct {
	Brokers          []string       `mapstructure:"brokers"`
	Sasl             SaslConfig     `mapstructure:"sasl"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
	OfflinePushTopic string         `mapstructure:"offline_push_topic"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
}

type KafkaBlockConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// SupervisorConfig 多进程模式，Workers 为 0 时按 CPU 数量
type SupervisorConfig struct {
	Workers              int    `mapstructure:"workers"`
	Binary               string `mapstructure:"binary"`
	MaxBackoffSeconds    int    `mapstructure:"max_backoff_seconds"`
	ShutdownGraceSeconds int    `mapstructure:"shutdown_grace_seconds"`
}
