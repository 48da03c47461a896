package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration parameters taken from environment variables.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	// Public base URL used to build absolute verification links in responses.
	APIBaseURL string `envconfig:"API_BASE_URL" default:"https://api.medseal.dev"`

	PubMedBaseURL   string  `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey    string  `envconfig:"PUBMED_API_KEY"`
	PubMedEmail     string  `envconfig:"PUBMED_EMAIL" default:"contact@medseal.dev"`
	PubMedRateLimit float64 `envconfig:"PUBMED_RATE_LIMIT" default:"3"`

	BedrockRegion  string `envconfig:"BEDROCK_REGION" default:"us-east-1"`
	BedrockModelID string `envconfig:"BEDROCK_MODEL_ID" default:"amazon.nova-lite-v1:0"`

	// S3 target for registry exports and backups. Export is skipped when the
	// bucket is left empty.
	S3Key      string `envconfig:"S3_KEY"`
	S3Secret   string `envconfig:"S3_SECRET"`
	S3URL      string `envconfig:"S3_URL"`
	S3Region   string `envconfig:"S3_REGION" default:"eu-central-1"`
	S3Bucket   string `envconfig:"S3_BUCKET"`
	ExportCron string `envconfig:"EXPORT_CRON" default:"0 3 * * *"`
}

// DSN returns the data source name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// ExportEnabled reports whether an S3 target for registry exports is configured.
func (c *Config) ExportEnabled() bool {
	return c.S3Bucket != "" && c.S3URL != ""
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
