package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port       string `mapstructure:"port"`
	GRPCPort   string `mapstructure:"grpc_port"`
	InstanceID string `mapstructure:"instance_id"`
	// Storage "postgres" (default) or "memory" for a single process without databases
	Storage string `mapstructure:"storage"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Items      DatabaseConfig `mapstructure:"items"`
	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	RabbitMQ   RabbitConfig   `mapstructure:"rabbitmq"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	MinIO      MinIOConfig    `mapstructure:"minio"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Invite    InviteConfig    `mapstructure:"invite"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
	// Addr use a single node instead of sentinel when set
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// RabbitConfig definition push notification queue
type RabbitConfig struct {
	URL           string `mapstructure:"url"`
	Queue         string `mapstructure:"queue"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// KafkaConfig definition message event topic
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// MinIOConfig definition attachment bucket
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	URLExpiry     time.Duration `mapstructure:"url_expiry"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// RateLimitConfig token bucket per user and room
type RateLimitConfig struct {
	Capacity int           `mapstructure:"capacity"`
	Refill   int           `mapstructure:"refill"`
	Period   time.Duration `mapstructure:"period"`
	// Backend "redis" or "local"
	Backend string `mapstructure:"backend"`
}

// PresenceConfig live connection tuning
type PresenceConfig struct {
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	OutboundBuffer   int           `mapstructure:"outbound_buffer"`
	TypingTTL        time.Duration `mapstructure:"typing_ttl"`
	LastSeenTTL      time.Duration `mapstructure:"last_seen_ttl"`
}

// InviteConfig invite link defaults
type InviteConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// ApplyDefaults fill zero values
func (c *Chat) ApplyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Storage == "" {
		c.Storage = "postgres"
	}
	if c.GRPCPort == "" {
		c.GRPCPort = "9090"
	}
	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = 20
	}
	if c.RateLimit.Refill <= 0 {
		c.RateLimit.Refill = 20
	}
	if c.RateLimit.Period <= 0 {
		c.RateLimit.Period = time.Minute
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "redis"
	}
	if c.Presence.HeartbeatTimeout <= 0 {
		c.Presence.HeartbeatTimeout = 30 * time.Minute
	}
	if c.Presence.SweepInterval <= 0 {
		c.Presence.SweepInterval = 15 * time.Minute
	}
	if c.Presence.PingInterval <= 0 {
		c.Presence.PingInterval = 30 * time.Second
	}
	if c.Presence.OutboundBuffer <= 0 {
		c.Presence.OutboundBuffer = 128
	}
	if c.Presence.TypingTTL <= 0 {
		c.Presence.TypingTTL = 5 * time.Second
	}
	if c.Presence.LastSeenTTL <= 0 {
		c.Presence.LastSeenTTL = 7 * 24 * time.Hour
	}
	if c.MinIO.URLExpiry <= 0 {
		c.MinIO.URLExpiry = 15 * time.Minute
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "chat.push"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "chat.messages"
	}
	for _, r := range []struct{ count, interval *int }{
		{&c.PostgreSQL.RetryCount, &c.PostgreSQL.RetryInterval},
		{&c.Items.RetryCount, &c.Items.RetryInterval},
		{&c.MongoSQL.RetryCount, &c.MongoSQL.RetryInterval},
		{&c.RabbitMQ.RetryCount, &c.RabbitMQ.RetryInterval},
		{&c.Kafka.RetryCount, &c.Kafka.RetryInterval},
		{&c.MinIO.RetryCount, &c.MinIO.RetryInterval},
	} {
		if *r.count <= 0 {
			*r.count = 5
		}
		if *r.interval <= 0 {
			*r.interval = 2
		}
	}
}
