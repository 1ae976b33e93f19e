package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	MFA      MFAConfig
	Sync     SyncConfig
	Metrics  MetricsConfig
	Verify   VerifyConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
	MigrationsPath string
}

// AuthConfig covers validation of operator tokens issued by the external
// identity provider. The control panel never authenticates credentials itself.
type AuthConfig struct {
	JWTSecret      string
	SuperuserClaim string
}

// MFAConfig addresses the remote MFA service. OfflineMode selects the
// synthetic client at startup; it is never decided per call.
type MFAConfig struct {
	BaseURL            string
	ServiceKey         string
	Timeout            time.Duration
	RateLimitPerMinute int
	OfflineMode        bool
}

type SyncConfig struct {
	WorkerCount int
	Interval    time.Duration
}

type MetricsConfig struct {
	RemoteWriteURL string
	TenantHeader   string
	BatchSize      int
	FlushInterval  time.Duration
	AuthToken      string
}

type VerifyConfig struct {
	Resolver  string
	TXTPrefix string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("SYSCREATOR")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("database.migrationspath", "migrations")
	viper.SetDefault("auth.superuserclaim", "superuser")
	viper.SetDefault("mfa.baseurl", "http://localhost:8000/mfa/api")
	viper.SetDefault("mfa.timeout", "30s")
	viper.SetDefault("mfa.ratelimitperminute", 60)
	viper.SetDefault("mfa.offlinemode", false)
	viper.SetDefault("sync.workercount", 10)
	viper.SetDefault("sync.interval", "15m")
	viper.SetDefault("metrics.tenantheader", "X-Scope-OrgID")
	viper.SetDefault("metrics.batchsize", 1000)
	viper.SetDefault("metrics.flushinterval", "10s")
	viper.SetDefault("verify.resolver", "8.8.8.8:53")
	viper.SetDefault("verify.txtprefix", "mfa-verify=")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if url := os.Getenv("MFA_SYSTEM_API_URL"); url != "" {
		cfg.MFA.BaseURL = url
	}
	if key := os.Getenv("MFA_SYSTEM_API_KEY"); key != "" {
		cfg.MFA.ServiceKey = key
	}
	if url := os.Getenv("METRICS_REMOTE_WRITE_URL"); url != "" {
		cfg.Metrics.RemoteWriteURL = url
	}

	return &cfg, nil
}
