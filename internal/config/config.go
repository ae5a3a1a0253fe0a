/*
Package config loads settings from an optional YAML file with environment
variable overrides. Secrets only ever come from the environment.
*/
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

const defaultInterval = 5 * time.Minute

// Database holds the Postgres connection settings.
type Database struct {
	URL string `yaml:"url"`
}

// Scraper holds feed and scheduling settings.
type Scraper struct {
	FeedURL         string `yaml:"feed_url"`
	Interval        string `yaml:"interval"`
	DisablePDFPages bool   `yaml:"disable_pdf_pages"`
}

// RunInterval parses the configured interval, defaulting to five minutes.
func (s Scraper) RunInterval() time.Duration {
	if s.Interval == "" {
		return defaultInterval
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return defaultInterval
	}
	return d
}

// Summarizer holds the Groq API settings.
type Summarizer struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Cloudinary holds image hosting credentials.
type Cloudinary struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// Email holds SMTP settings for the announcement emails.
type Email struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	User       string `yaml:"-"`
	Pass       string `yaml:"-"`
	To         string `yaml:"to"`
}

// Logging holds log output settings.
type Logging struct {
	Level string `yaml:"level"`
}

// Config is the full application configuration.
type Config struct {
	Database   Database   `yaml:"database"`
	Scraper    Scraper    `yaml:"scraper"`
	Summarizer Summarizer `yaml:"summarizer"`
	Cloudinary Cloudinary `yaml:"cloudinary"`
	Email      Email      `yaml:"email"`
	Logging    Logging    `yaml:"logging"`
}

// Features reports which best-effort collaborators are usable with the
// current settings. Missing credentials disable a feature; they never fail
// startup.
type Features struct {
	Upload       bool
	PDFRendering bool
	Summarizer   bool
	Email        bool
}

// Features computes the enabled feature set.
func (c Config) Features() Features {
	upload := c.Cloudinary.CloudName != "" && c.Cloudinary.APIKey != "" && c.Cloudinary.APISecret != ""
	return Features{
		Upload:       upload,
		PDFRendering: upload && !c.Scraper.DisablePDFPages,
		Summarizer:   c.Summarizer.APIKey != "",
		Email:        c.Email.User != "" && c.Email.Pass != "" && c.Email.To != "",
	}
}

// Load reads the YAML file at path (when non-empty and present) and applies
// environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Config{
		Email: Email{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
		Logging: Logging{Level: "info"},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, eris.Wrapf(err, "config: read %s", path)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, eris.Wrapf(err, "config: parse %s", path)
		}
	}

	cfg.applyEnv()

	if cfg.Database.URL == "" {
		return Config{}, eris.New("config: database url is required (set DATABASE_URL)")
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Scraper.FeedURL, "FEED_URL")
	setString(&c.Scraper.Interval, "SCRAPE_INTERVAL")
	setString(&c.Summarizer.APIKey, "GROQ_API_KEY")
	setString(&c.Summarizer.Model, "GROQ_MODEL")
	setString(&c.Summarizer.BaseURL, "GROQ_BASE_URL")
	setString(&c.Cloudinary.CloudName, "CLOUDINARY_CLOUD_NAME")
	setString(&c.Cloudinary.APIKey, "CLOUDINARY_API_KEY")
	setString(&c.Cloudinary.APISecret, "CLOUDINARY_API_SECRET")
	setString(&c.Email.SMTPServer, "SMTP_SERVER")
	setInt(&c.Email.SMTPPort, "SMTP_PORT")
	setString(&c.Email.User, "EMAIL_USER")
	setString(&c.Email.Pass, "EMAIL_PASS")
	setString(&c.Email.To, "EMAIL_TO")
	setString(&c.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
