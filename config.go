package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coreybb/signet/githubapp"
	"github.com/coreybb/signet/notify"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	DatabaseURL string `env:"DB_CONNECTION_STRING" env-default:"user=postgres password=password dbname=signet host=localhost port=5432 sslmode=disable"`
	AdminToken  string `env:"ADMIN_API_TOKEN"`
	BaseURL     string `env:"BASE_URL" env-default:"http://localhost:8080"`
	SignURL     string `env:"SIGN_URL"`
	StoragePath string `env:"STORAGE_PATH" env-default:"_documents"`

	MatcherCacheTTL time.Duration `env:"MATCHER_CACHE_TTL" env-default:"10m"`

	GitHubAppID          int64  `env:"GITHUB_APP_ID"`
	GitHubPrivateKey     string `env:"GITHUB_PRIVATE_KEY"`
	GitHubPrivateKeyPath string `env:"GITHUB_PRIVATE_KEY_PATH"`
	GitHubWebhookSecret  string `env:"GITHUB_WEBHOOK_SECRET"`
	GitHubAPIURL         string `env:"GITHUB_API_URL" env-default:"https://api.github.com"`

	SMTPServer   string `env:"SMTP_SERVER"`
	SMTPPort     int    `env:"SMTP_PORT" env-default:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	SendGridAPIKey    string `env:"SENDGRID_API_KEY"`
	SendGridFromEmail string `env:"SENDGRID_FROM_EMAIL" env-default:"cla@signet.dev"`
	SendGridFromName  string `env:"MAIL_FROM_NAME" env-default:"Signet"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing configuration from environment variables: %w", err)
	}
	if cfg.SignURL == "" {
		cfg.SignURL = cfg.BaseURL + "/sign"
	}
	if cfg.MatcherCacheTTL <= 0 {
		return cfg, fmt.Errorf("MATCHER_CACHE_TTL must be positive, got %s", cfg.MatcherCacheTTL)
	}
	return cfg, nil
}

// emailSender picks the mail provider: SMTP when a server is configured,
// otherwise SendGrid when an API key is set, otherwise none.
func emailSender(cfg Config) notify.Sender {
	switch {
	case cfg.SMTPServer != "":
		return &notify.SMTPSender{
			Server:   cfg.SMTPServer,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			FromName: cfg.SendGridFromName,
		}
	case cfg.SendGridAPIKey != "":
		return notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
	default:
		log.Println("WARNING: Neither SMTP_SERVER nor SENDGRID_API_KEY set. Notifications will be recorded as skipped.")
		return notify.NoEmail{}
	}
}

// appSigner loads the GitHub App key. A nil signer means the GitHub
// integration is disabled.
func appSigner(cfg Config) (*githubapp.AppSigner, error) {
	if cfg.GitHubAppID == 0 {
		log.Println("WARNING: GITHUB_APP_ID not set. Pull request checks are disabled.")
		return nil, nil
	}

	keyPEM := []byte(cfg.GitHubPrivateKey)
	if len(keyPEM) == 0 {
		if cfg.GitHubPrivateKeyPath == "" {
			return nil, fmt.Errorf("GITHUB_APP_ID is set but neither GITHUB_PRIVATE_KEY nor GITHUB_PRIVATE_KEY_PATH is")
		}
		var err error
		keyPEM, err = os.ReadFile(cfg.GitHubPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read GitHub App private key: %w", err)
		}
	}
	return githubapp.NewAppSigner(cfg.GitHubAppID, keyPEM)
}
