package config

import "time"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Policy   PolicyConfig   `yaml:"policy"`
	Quota    QuotaConfig    `yaml:"quota"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	s := ""
	for i > 0 {
		s = string(rune('0'+i%10)) + s
		i /= 10
	}
	return s
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AIConfig covers the orchestration core: providers, fallback policy,
// the admission queue, and the response caches.
type AIConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Fallback  FallbackConfig            `yaml:"fallback"`
	Queue     QueueConfig               `yaml:"queue"`
	Caches    map[string]CacheConfig    `yaml:"caches"`
}

type ProviderConfig struct {
	Type               string            `yaml:"type"`
	BaseURL            string            `yaml:"base_url"`
	APIKey             string            `yaml:"api_key"`
	Model              string            `yaml:"model"`
	RequestsPerMinute  int               `yaml:"requests_per_minute"`
	ConcurrentRequests int               `yaml:"concurrent_requests"`
	Timeout            time.Duration     `yaml:"timeout"`
	Headers            map[string]string `yaml:"headers,omitempty"`
}

type FallbackConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	Order         []string      `yaml:"order"`
}

type QueueConfig struct {
	MaxDepth    int           `yaml:"max_depth"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

type CacheConfig struct {
	MaxSize         int           `yaml:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

// QuotaConfig bounds per-user usage at the HTTP edge, ahead of the
// per-provider admission control inside the core.
type QuotaConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	FreeDailyLimit    int `yaml:"free_daily_limit"`
	ProDailyLimit     int `yaml:"pro_daily_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "vitae",
			User:            "vitae",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			DB:       0,
			PoolSize: 50,
		},
		AI: AIConfig{
			Providers: map[string]ProviderConfig{},
			Fallback: FallbackConfig{
				RetryAttempts: 2,
				BaseDelay:     500 * time.Millisecond,
				MaxDelay:      8 * time.Second,
			},
			Queue: QueueConfig{
				MaxDepth:    100,
				WaitTimeout: 30 * time.Second,
			},
			Caches: map[string]CacheConfig{
				"ai_responses": {
					MaxSize:         500,
					DefaultTTL:      15 * time.Minute,
					CleanupInterval: time.Minute,
				},
				"user_context": {
					MaxSize:         1000,
					DefaultTTL:      30 * time.Minute,
					CleanupInterval: time.Minute,
				},
			},
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "/etc/vitae/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		Quota: QuotaConfig{
			RequestsPerMinute: 30,
			FreeDailyLimit:    50,
			ProDailyLimit:     1000,
		},
	}
}
