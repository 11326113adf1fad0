// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyAppEnv          = "APP_ENV"
	KeyLogLevel        = "LOG_LEVEL"
	KeyHTTPPort        = "HTTP_PORT"
	KeyStoreBackend    = "STORE_BACKEND"
	KeyTable           = "USERINFO_TABLE"
	KeyAWSRegion       = "AWS_REGION"
	KeyDynamoEndpoint  = "DYNAMODB_ENDPOINT"
	KeyMongoURI        = "MONGO_URI"
	KeyMongoDB         = "MONGO_DB"
	KeyUpdateUserToken = "UPDATE_USER_TOKEN"
	KeyAddTimeToken    = "ADD_TIME_TOKEN"
	KeyDeductTimeToken = "DEDUCT_TIME_TOKEN"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Supported storage backends.
	BackendDynamoDB = "dynamodb"
	BackendMongo    = "mongo"

	// Defaults for optional settings.
	DefaultAppEnv       = EnvProduction
	DefaultLogLevel     = "info"
	DefaultHTTPPort     = 8080
	DefaultStoreBackend = BackendDynamoDB
	DefaultAWSRegion    = "us-east-1"
	DefaultMongoDB      = "userinfo"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the service must refuse to start without this value
	Default     string // default when unset (empty when required)
	Secret      bool   // whether the value is masked in summaries
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the service.
// .env loading is only permitted when APP_ENV=development; Lambda deployments
// rely on environment variables supplied by the function configuration.
var Contract = []VarSpec{
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "Port for the local HTTP server (ignored by the Lambda entrypoint).",
	},
	{
		Key:         KeyStoreBackend,
		Example:     BackendDynamoDB + " / " + BackendMongo,
		Default:     DefaultStoreBackend,
		Description: "Storage engine holding user records.",
	},
	{
		Key:         KeyTable,
		Example:     "photonranch-userinfo",
		Description: "DynamoDB table keyed by user_id (hash) and last_updated (range).",
		Notes:       "Required when " + KeyStoreBackend + "=" + BackendDynamoDB + ".",
	},
	{
		Key:         KeyAWSRegion,
		Example:     DefaultAWSRegion,
		Default:     DefaultAWSRegion,
		Description: "AWS region of the DynamoDB table.",
	},
	{
		Key:         KeyDynamoEndpoint,
		Example:     "http://localhost:8000",
		Description: "Endpoint override for DynamoDB Local.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Secret:      true,
		Description: "MongoDB connection string.",
		Notes:       "Required when " + KeyStoreBackend + "=" + BackendMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDB,
		Default:     DefaultMongoDB,
		Description: "MongoDB database name.",
	},
	{
		Key:         KeyUpdateUserToken,
		Example:     "s3cret",
		Secret:      true,
		Description: "Bearer token required by /update-user-info; unset allows all callers.",
	},
	{
		Key:         KeyAddTimeToken,
		Example:     "s3cret",
		Secret:      true,
		Description: "Bearer token required by /add-time; unset allows all callers.",
	},
	{
		Key:         KeyDeductTimeToken,
		Example:     "s3cret",
		Secret:      true,
		Description: "Bearer token required by /deduct-time; unset allows all callers.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	AppEnv          string
	LogLevel        string
	HTTPPort        int
	StoreBackend    string
	Table           string
	AWSRegion       string
	DynamoEndpoint  string
	MongoURI        string
	MongoDB         string
	UpdateUserToken string
	AddTimeToken    string
	DeductTimeToken string
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:          firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		LogLevel:        firstNonEmpty(os.Getenv(KeyLogLevel), DefaultLogLevel),
		HTTPPort:        DefaultHTTPPort,
		StoreBackend:    firstNonEmpty(normalizeEnv(os.Getenv(KeyStoreBackend)), DefaultStoreBackend),
		Table:           strings.TrimSpace(os.Getenv(KeyTable)),
		AWSRegion:       firstNonEmpty(os.Getenv(KeyAWSRegion), DefaultAWSRegion),
		DynamoEndpoint:  strings.TrimSpace(os.Getenv(KeyDynamoEndpoint)),
		MongoURI:        strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:         firstNonEmpty(os.Getenv(KeyMongoDB), DefaultMongoDB),
		UpdateUserToken: strings.TrimSpace(os.Getenv(KeyUpdateUserToken)),
		AddTimeToken:    strings.TrimSpace(os.Getenv(KeyAddTimeToken)),
		DeductTimeToken: strings.TrimSpace(os.Getenv(KeyDeductTimeToken)),
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	switch cfg.StoreBackend {
	case BackendDynamoDB:
		if cfg.Table == "" {
			missing = append(missing, KeyTable)
		}
	case BackendMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, KeyMongoURI)
		}
	default:
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyStoreBackend, BackendDynamoDB, BackendMongo)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.MongoURI != "" && !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
		return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}

	if cfg.DynamoEndpoint != "" {
		if _, err := url.ParseRequestURI(cfg.DynamoEndpoint); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyDynamoEndpoint, err)
		}
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the resolved configuration with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"store_backend: " + cfg.StoreBackend,
		"userinfo_table: " + cfg.Table,
		"aws_region: " + cfg.AWSRegion,
		"dynamodb_endpoint: " + cfg.DynamoEndpoint,
		"mongo_uri: " + redactURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"update_user_token: " + maskSecret(cfg.UpdateUserToken),
		"add_time_token: " + maskSecret(cfg.AddTimeToken),
		"deduct_time_token: " + maskSecret(cfg.DeductTimeToken),
	}

	return strings.Join(lines, "\n")
}

func redactURI(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "invalid-uri-redacted"
	}
	parsed.User = nil

	return parsed.String()
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "...redacted"
	}

	return value[:4] + "...redacted"
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
