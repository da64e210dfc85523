package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	JWTSecret        string        `env:"JWT_SECRET,required,notEmpty"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_EXPIRY" envDefault:"168h"`

	// Store credentials are signed with their own secret so an identity
	// token can never be replayed against the data store.
	StoreJWTSecret   string        `env:"STORE_JWT_SECRET,required,notEmpty"`
	StoreTokenExpiry time.Duration `env:"STORE_TOKEN_EXPIRY" envDefault:"10m"`

	FrontendCallbackURL string `env:"FRONTEND_CALLBACK_URL" envDefault:"http://localhost:8080/auth/complete"`
	BaseURL             string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	SignInPath          string `env:"SIGNIN_PATH" envDefault:"/signin"`

	// PlanPrices maps a billing price id to its friendly plan name,
	// e.g. "price_basic:basic,price_pro:pro".
	PlanPrices map[string]string `env:"PLAN_PRICES" envKeyValSeparator:":"`

	GitHub   OAuthConfig `envPrefix:"GITHUB_"`
	Google   OAuthConfig `envPrefix:"GOOGLE_"`
	Facebook OAuthConfig `envPrefix:"FACEBOOK_"`
	Twitter  OAuthConfig `envPrefix:"TWITTER_"`

	SMTP SMTPConfig `envPrefix:"SMTP_"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

// Load reads an optional .env file and parses the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTSecret == cfg.StoreJWTSecret {
		return nil, fmt.Errorf("STORE_JWT_SECRET must differ from JWT_SECRET")
	}
	return &cfg, nil
}

// AdminConfig is the subset operator commands need. It does not require
// the token secrets.
type AdminConfig struct {
	DatabaseURL string            `env:"DATABASE_URL,required,notEmpty"`
	PlanPrices  map[string]string `env:"PLAN_PRICES" envKeyValSeparator:":"`
}

func LoadAdmin() (*AdminConfig, error) {
	_ = godotenv.Load()

	var cfg AdminConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
