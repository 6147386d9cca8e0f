package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arklim/social-platform-accounts/internal/core/domain"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Security  SecuritySettings  `mapstructure:"security"`
	Password  PasswordSettings  `mapstructure:"password"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// SecuritySettings maps one-to-one onto domain.SecurityPolicy.
type SecuritySettings struct {
	MultiTenant                    bool          `mapstructure:"multi_tenant"`
	DefaultTenant                  string        `mapstructure:"default_tenant"`
	UsernamesUniqueAcrossTenants   bool          `mapstructure:"usernames_unique_across_tenants"`
	EmailIsUsername                bool          `mapstructure:"email_is_username"`
	RequireAccountVerification     bool          `mapstructure:"require_account_verification"`
	AllowLoginAfterAccountCreation bool          `mapstructure:"allow_login_after_account_creation"`
	AllowAccountDeletion           bool          `mapstructure:"allow_account_deletion"`
	LockoutFailedLoginAttempts     int           `mapstructure:"lockout_failed_login_attempts"`
	LockoutDuration                time.Duration `mapstructure:"lockout_duration"`
	VerificationKeyLifetime        time.Duration `mapstructure:"verification_key_lifetime"`
	TwoFactorCodeLifetime          time.Duration `mapstructure:"two_factor_code_lifetime"`
	RememberedDeviceLifetime       time.Duration `mapstructure:"remembered_device_lifetime"`
	DeviceSigningKey               string        `mapstructure:"device_signing_key"`
}

// PasswordSettings configures hashing and validation.
type PasswordSettings struct {
	// HashingIterations <= 0 derives the count from the calendar year.
	HashingIterations int `mapstructure:"hashing_iterations"`
	MinLength         int `mapstructure:"min_length"`
	MinCharacterClass int `mapstructure:"min_character_classes"`
	// MinStrengthScore > 0 enables zxcvbn strength scoring (0-4).
	MinStrengthScore int `mapstructure:"min_strength_score"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures the Kafka event relay
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// SecurityPolicy converts the settings into the domain policy consumed by
// the account service.
func (c *AppConfig) SecurityPolicy() domain.SecurityPolicy {
	policy := domain.DefaultSecurityPolicy()

	policy.MultiTenant = c.Security.MultiTenant
	if c.Security.DefaultTenant != "" {
		policy.DefaultTenant = c.Security.DefaultTenant
	}
	policy.UsernamesUniqueAcrossTenants = c.Security.UsernamesUniqueAcrossTenants
	policy.EmailIsUsername = c.Security.EmailIsUsername
	policy.RequireAccountVerification = c.Security.RequireAccountVerification
	policy.AllowLoginAfterAccountCreation = c.Security.AllowLoginAfterAccountCreation
	policy.AllowAccountDeletion = c.Security.AllowAccountDeletion
	if c.Security.LockoutFailedLoginAttempts > 0 {
		policy.AccountLockoutFailedLoginAttempts = c.Security.LockoutFailedLoginAttempts
	}
	if c.Security.LockoutDuration > 0 {
		policy.AccountLockoutDuration = c.Security.LockoutDuration
	}
	if c.Security.VerificationKeyLifetime > 0 {
		policy.VerificationKeyLifetime = c.Security.VerificationKeyLifetime
	}
	if c.Security.TwoFactorCodeLifetime > 0 {
		policy.TwoFactorCodeLifetime = c.Security.TwoFactorCodeLifetime
	}
	if c.Security.RememberedDeviceLifetime > 0 {
		policy.RememberedDeviceLifetime = c.Security.RememberedDeviceLifetime
	}
	policy.PasswordHashingIterationCount = c.Password.HashingIterations

	return policy
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ACCOUNTS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"security.multi_tenant",
		"security.default_tenant",
		"security.usernames_unique_across_tenants",
		"security.email_is_username",
		"security.require_account_verification",
		"security.allow_login_after_account_creation",
		"security.allow_account_deletion",
		"security.lockout_failed_login_attempts",
		"security.lockout_duration",
		"security.verification_key_lifetime",
		"security.two_factor_code_lifetime",
		"security.remembered_device_lifetime",
		"security.device_signing_key",
		"password.hashing_iterations",
		"password.min_length",
		"password.min_character_classes",
		"password.min_strength_score",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "accounts-service")
	v.SetDefault("app.env", "development")

	v.SetDefault("security.multi_tenant", false)
	v.SetDefault("security.default_tenant", "default")
	v.SetDefault("security.usernames_unique_across_tenants", false)
	v.SetDefault("security.email_is_username", false)
	v.SetDefault("security.require_account_verification", true)
	v.SetDefault("security.allow_login_after_account_creation", true)
	v.SetDefault("security.allow_account_deletion", false)
	v.SetDefault("security.lockout_failed_login_attempts", 5)
	v.SetDefault("security.lockout_duration", "5m")
	v.SetDefault("security.verification_key_lifetime", "24h")
	v.SetDefault("security.two_factor_code_lifetime", "20m")
	v.SetDefault("security.remembered_device_lifetime", "720h")
	v.SetDefault("security.device_signing_key", "")

	v.SetDefault("password.hashing_iterations", 0)
	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.min_character_classes", 3)
	v.SetDefault("password.min_strength_score", 0)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "accounts")
	v.SetDefault("postgres.password", "accounts_password")
	v.SetDefault("postgres.database", "accounts")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "accounts")

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "accounts-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "ACCOUNTS_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
