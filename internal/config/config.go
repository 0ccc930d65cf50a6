package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // CLINIC_TIMEZONE tiene que cargar también en imágenes sin zoneinfo

	"github.com/spf13/viper"
)

const (
	AuthModeDev = "dev"
	AuthModeJWT = "jwt"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	AppName     string `mapstructure:"APP_NAME"`
	DatabaseURL string `mapstructure:"DATABASE_URL"` // vacío = store en memoria
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`

	AuthMode  string `mapstructure:"AUTH_MODE"`
	JWTSecret string `mapstructure:"JWT_SECRET"`

	ClinicTimezone      string `mapstructure:"CLINIC_TIMEZONE"`
	ClientPetsPolicy    string `mapstructure:"CLIENT_PETS_POLICY"`
	BootstrapAdminEmail string `mapstructure:"BOOTSTRAP_ADMIN_EMAIL"`
}

var keys = []string{
	"PORT", "ENV", "APP_NAME", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"LOG_LEVEL", "LOG_FORMAT", "AUTH_MODE", "JWT_SECRET",
	"CLINIC_TIMEZONE", "CLIENT_PETS_POLICY", "BOOTSTRAP_ADMIN_EMAIL",
}

// Load lee .env (si existe) y el entorno. El entorno gana.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("APP_NAME", "vet-appointments")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("AUTH_MODE", AuthModeDev)
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("CLIENT_PETS_POLICY", "block")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env es opcional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	cfg.ClientPetsPolicy = strings.ToLower(strings.TrimSpace(cfg.ClientPetsPolicy))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) UsesMemoryStore() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}

func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeDev:
		if c.Env == "production" {
			return fmt.Errorf("AUTH_MODE=dev is not allowed with ENV=production")
		}
	case AuthModeJWT:
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeDev, AuthModeJWT, c.AuthMode)
	}

	switch c.ClientPetsPolicy {
	case "block", "orphan":
	default:
		return fmt.Errorf("CLIENT_PETS_POLICY must be \"block\" or \"orphan\", got %q", c.ClientPetsPolicy)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.ClinicTimezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

// Clock es el reloj que se inyecta en los servicios: hora actual en la zona
// de la clínica. Cae a UTC si la zona no carga (Validate ya lo habría rechazado).
func (c *Config) Clock() func() time.Time {
	loc, err := c.Location()
	if err != nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}
