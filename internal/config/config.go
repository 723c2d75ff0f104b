package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDSN       string        `env:"DATABASE_DSN,required"`
	Port              string        `env:"PORT" envDefault:"8080"`
	JWTSecret         string        `env:"JWT_SECRET,required"`
	AdminUser         string        `env:"ADMIN_USER" envDefault:"admin"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH,required"`
	WindowDuration    time.Duration `env:"WINDOW_DURATION" envDefault:"45m"`
	GraderRoot        string        `env:"GRADER_ROOT" envDefault:"./graders"`
	GraderTimeout     time.Duration `env:"GRADER_TIMEOUT" envDefault:"10s"`
	TelegramToken     string        `env:"TELEGRAM_TOKEN"`
	TelegramChatID    int64         `env:"TELEGRAM_CHAT_ID"`
}

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
