package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Gateway GatewayConfig
	Wallet  WalletConfig
}

// WalletConfig carries the wallet-sheet policy: merchant presentation
// and the flat shipping and tax rates used for server-side total
// recomputation.
type WalletConfig struct {
	MerchantName string
	CountryCode  string
	TaxBasisPts  int64
	ShippingFlat int64
}

// GatewayConfig carries per-deployment gateway policy. It is loaded once
// at startup and treated as immutable for the duration of a request.
type GatewayConfig struct {
	ID                  string
	Environment         string
	TransactionType     string
	RequireCSC          bool
	RequireCSCForTokens bool
	TokenizationMode    string
	ForceChargeZero     bool
	DetailedDecline     bool
	CaptureWindowHours  int
	CaptureMaxAmount    int64
	HostedPayPageURL    string
	HostedAPIURL        string
	HostedSecret        string
	ReturnURL           string
	CancelURL           string
	HomeURL             string
}

const (
	EnvironmentProduction = "production"
	EnvironmentSandbox    = "sandbox"

	TransactionTypeCharge        = "charge"
	TransactionTypeAuthorization = "authorization"

	TokenizationDisabled   = "disabled"
	TokenizationWithSale   = "with_sale"
	TokenizationBeforeSale = "before_sale"
	TokenizationAfterSale  = "after_sale"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "payrail"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payrail"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Gateway: GatewayConfig{
			ID:                  getenv("GATEWAY_ID", "sandbox"),
			Environment:         normalizeGatewayEnvironment(getenv("GATEWAY_ENVIRONMENT", EnvironmentSandbox)),
			TransactionType:     normalizeTransactionType(getenv("GATEWAY_TRANSACTION_TYPE", TransactionTypeCharge)),
			RequireCSC:          getenvBool("GATEWAY_REQUIRE_CSC", true),
			RequireCSCForTokens: getenvBool("GATEWAY_REQUIRE_CSC_FOR_TOKENS", false),
			TokenizationMode:    normalizeTokenizationMode(getenv("GATEWAY_TOKENIZATION_MODE", TokenizationDisabled)),
			ForceChargeZero:     getenvBool("GATEWAY_FORCE_CHARGE_ZERO", false),
			DetailedDecline:     getenvBool("GATEWAY_DETAILED_DECLINE", false),
			CaptureWindowHours:  getenvInt("GATEWAY_CAPTURE_WINDOW_HOURS", 720),
			CaptureMaxAmount:    getenvInt64("GATEWAY_CAPTURE_MAX_AMOUNT", 0),
			HostedPayPageURL:    strings.TrimSpace(getenv("GATEWAY_HOSTED_PAY_PAGE_URL", "")),
			HostedAPIURL:        strings.TrimSpace(getenv("GATEWAY_HOSTED_API_URL", "")),
			HostedSecret:        strings.TrimSpace(getenv("GATEWAY_HOSTED_SECRET", "")),
			ReturnURL:           strings.TrimSpace(getenv("GATEWAY_RETURN_URL", "/checkout/complete")),
			CancelURL:           strings.TrimSpace(getenv("GATEWAY_CANCEL_URL", "/checkout/cancelled")),
			HomeURL:             strings.TrimSpace(getenv("GATEWAY_HOME_URL", "/")),
		},

		Wallet: WalletConfig{
			MerchantName: getenv("WALLET_MERCHANT_NAME", "payrail"),
			CountryCode:  getenv("WALLET_COUNTRY_CODE", "US"),
			TaxBasisPts:  getenvInt64("WALLET_TAX_BASIS_POINTS", 0),
			ShippingFlat: getenvInt64("WALLET_SHIPPING_FLAT", 0),
		},
	}

	return cfg
}

func normalizeGatewayEnvironment(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case EnvironmentProduction:
		return EnvironmentProduction
	default:
		return EnvironmentSandbox
	}
}

func normalizeTokenizationMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case TokenizationWithSale:
		return TokenizationWithSale
	case TokenizationBeforeSale:
		return TokenizationBeforeSale
	case TokenizationAfterSale:
		return TokenizationAfterSale
	default:
		return TokenizationDisabled
	}
}

func normalizeTransactionType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case TransactionTypeAuthorization:
		return TransactionTypeAuthorization
	default:
		return TransactionTypeCharge
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
