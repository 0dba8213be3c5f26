package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/pixelift/pixelift/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the pixelift service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) use symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Payment provider API base URL
	PaymentAPIURL string

	// Secret shared with the payment provider to verify webhook signatures
	PaymentWebhookSecret string

	// Background-removal inference API base URL
	InferenceAPIURL string

	// Blob store base URL used to stage images for the inference API
	BlobStoreURL string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
	}
}

// Load variables from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"SECRET_KEY":             setString(&c.SecretKey),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"PAYMENT_API_URL":        setString(&c.PaymentAPIURL),
		"PAYMENT_WEBHOOK_SECRET": setString(&c.PaymentWebhookSecret),
		"INFERENCE_API_URL":      setString(&c.InferenceAPIURL),
		"BLOB_STORE_URL":         setString(&c.BlobStoreURL),
		"ENVIRONMENT":            setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("pixelift", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVar(&c.PaymentAPIURL, "payment-api", c.PaymentAPIURL, "Payment provider API base URL")
	fs.StringVar(&c.PaymentWebhookSecret, "webhook-secret", c.PaymentWebhookSecret, "Payment webhook signing secret")
	fs.StringVar(&c.InferenceAPIURL, "inference-api", c.InferenceAPIURL, "Background-removal inference API base URL")
	fs.StringVar(&c.BlobStoreURL, "blob-store", c.BlobStoreURL, "Blob store base URL")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}
