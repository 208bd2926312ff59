package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"mediasite-provisioning/internal/mediasite"
	"mediasite-provisioning/internal/provisioning"
)

type Config struct {
	// Canvas
	CanvasURL          string `envconfig:"CANVAS_URL" validate:"required,url"`
	CanvasClientID     string `envconfig:"CANVAS_CLIENT_ID"`
	CanvasClientSecret string `envconfig:"CANVAS_CLIENT_SECRET"`
	OAuthRedirectURI   string `envconfig:"OAUTH_REDIRECT_URI"`
	CanvasPageSize     int    `envconfig:"CANVAS_PAGE_SIZE" default:"50" validate:"min=1,max=100"`
	// CanvasToken is the admin token used by the CLI when no -user is given.
	CanvasToken string `envconfig:"CANVAS_TOKEN"`

	// Mediasite
	MediasiteURL     string        `envconfig:"MEDIASITE_API_URL" validate:"required,url"`
	MediasiteUser    string        `envconfig:"MEDIASITE_USERNAME" validate:"required"`
	MediasitePass    string        `envconfig:"MEDIASITE_PASSWORD" validate:"required"`
	MediasiteAPIKey  string        `envconfig:"MEDIASITE_API_KEY" validate:"required"`
	MediasiteRPS     float64       `envconfig:"MEDIASITE_RPS" default:"5" validate:"gt=0"`
	MediasiteTimeout time.Duration `envconfig:"MEDIASITE_TIMEOUT" default:"2m"`

	// System-wide LTI pair, used when a tenant has none configured.
	OAuthConsumerKey  string `envconfig:"OAUTH_CONSUMER_KEY" validate:"required"`
	OAuthSharedSecret string `envconfig:"OAUTH_SHARED_SECRET" validate:"required"`

	ProvisionUserProfiles bool   `envconfig:"PROVISION_USER_PROFILES" default:"false"`
	MediasiteLinkModule   bool   `envconfig:"MEDIASITE_LINK_MODULE" default:"false"`
	CanvasLinkName        string `envconfig:"CANVAS_LINK_NAME" default:"Mediasite"`
	CanvasModuleName      string `envconfig:"CANVAS_MODULE_NAME"`
	BatchWorkers          int    `envconfig:"BATCH_WORKERS" default:"4" validate:"min=1,max=32"`
	CatalogShowDate       bool   `envconfig:"CATALOG_SHOW_DATE" default:"false"`
	CatalogShowTime       bool   `envconfig:"CATALOG_SHOW_TIME" default:"false"`
	CatalogItemsPerPage   int    `envconfig:"CATALOG_ITEMS_PER_PAGE" default:"100" validate:"min=1"`

	// Store
	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres"`
	StoreDSN    string `envconfig:"STORE_DSN" default:"provisioning.db"`

	// Server
	AppAddr            string `envconfig:"APP_ADDR" default:":8080"`
	AppProduction      bool   `envconfig:"APP_PRODUCTION" default:"false"`
	ProvisionRateLimit int    `envconfig:"PROVISION_RATE_LIMIT" default:"20" validate:"min=1"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat          string `envconfig:"LOG_FORMAT" default:"console" validate:"oneof=console json"`

	// SFTP
	SFTPHost                  string `envconfig:"SFTP_HOST"`
	SFTPPort                  int    `envconfig:"SFTP_PORT" default:"22"`
	SFTPUser                  string `envconfig:"SFTP_USER"`
	SFTPPass                  string `envconfig:"SFTP_PASS"`
	SFTPDir                   string `envconfig:"SFTP_DIR" default:"/"`
	SFTPKnownHosts            string `envconfig:"SFTP_KNOWN_HOSTS"`
	SFTPInsecureIgnoreHostKey bool   `envconfig:"SFTP_INSECURE_IGNORE_HOST_KEY" default:"false"`
}

// Load reads .env (when present) and then the process environment.
// Values already in the environment win over .env.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.CanvasURL = strings.TrimRight(cfg.CanvasURL, "/")
	cfg.MediasiteURL = strings.TrimRight(cfg.MediasiteURL, "/")
	return cfg, nil
}

// Validate checks the settings both remote clients need.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SFTPEnabled reports whether enough SFTP settings are present to attempt an upload.
func (c Config) SFTPEnabled() bool {
	return c.SFTPHost != "" && c.SFTPUser != "" && c.SFTPPass != ""
}

// ProvisioningOptions maps the workflow settings.
func (c Config) ProvisioningOptions() provisioning.Options {
	return provisioning.Options{
		LinkName:              c.CanvasLinkName,
		ModuleName:            c.CanvasModuleName,
		LinkModule:            c.MediasiteLinkModule,
		ProvisionUserProfiles: c.ProvisionUserProfiles,
		DefaultCredentials: provisioning.Credentials{
			ConsumerKey:  c.OAuthConsumerKey,
			SharedSecret: c.OAuthSharedSecret,
		},
		CatalogDefaults: mediasite.CatalogSettings{
			ShowDate:     c.CatalogShowDate,
			ShowTime:     c.CatalogShowTime,
			ItemsPerPage: c.CatalogItemsPerPage,
		},
	}
}
