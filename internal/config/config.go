package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config regroupe toute la configuration du service de checkout.
type Config struct {
	Port        string
	Environment string

	JWTSecret string

	ScyllaHosts       []string
	ScyllaUsername    string
	ScyllaPassword    string
	UsersKeyspace     string
	OrdersKeyspace    string
	ScyllaTimeout     time.Duration
	ScyllaNumConns    int
	ScyllaSSLEnabled  bool
	ScyllaCACertPath  string
	StoreDriver       string // "scylla" ou "memory"
	CommitLockTTL     time.Duration
	CouponCatalogTTL  time.Duration
	CouponApplyPerMin int

	RedisHost     string
	RedisPassword string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	ReceiptsBucket string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	PaymentProvider   string // "razorpay" ou "stripe"
	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	StripeSecretKey   string
	Currency          string

	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal

	CORSOrigins []string
}

// Load charge le fichier .env (s'il existe) puis lit les variables d'environnement.
func Load() *Config {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé: on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
	return FromEnv()
}

// FromEnv construit la configuration sans toucher au fichier .env.
func FromEnv() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		ScyllaHosts:       splitList(getEnv("SCYLLA_HOSTS", "127.0.0.1")),
		ScyllaUsername:    os.Getenv("SCYLLA_USERNAME"),
		ScyllaPassword:    os.Getenv("SCYLLA_PASSWORD"),
		UsersKeyspace:     getEnv("SCYLLA_KS_USERS_KEYSPACE", "ks_users"),
		OrdersKeyspace:    getEnv("SCYLLA_KS_ORDERS_KEYSPACE", "ks_orders"),
		ScyllaTimeout:     getDuration("SCYLLA_TIMEOUT", 5*time.Second),
		ScyllaNumConns:    getInt("SCYLLA_NUM_CONNS", 20),
		ScyllaSSLEnabled:  strings.ToLower(os.Getenv("SCYLLA_SSL_ENABLED")) == "true",
		ScyllaCACertPath:  os.Getenv("SCYLLA_SSL_CA_PATH"),
		StoreDriver:       getEnv("STORE_DRIVER", "scylla"),
		CommitLockTTL:     getDuration("COMMIT_LOCK_TTL", 30*time.Second),
		CouponCatalogTTL:  getDuration("COUPON_CATALOG_TTL", 5*time.Minute),
		CouponApplyPerMin: getInt("COUPON_APPLY_PER_MINUTE", 20),

		RedisHost:     getEnv("REDIS_HOST", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		ReceiptsBucket: getEnv("MINIO_RECEIPTS_BUCKET", "cedra-receipts"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getEnv("MAIL_FROM", "noreply@cedra.shop"),

		PaymentProvider:   strings.ToLower(getEnv("PAYMENT_PROVIDER", "razorpay")),
		RazorpayKeyID:     os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:   getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		StripeSecretKey:   os.Getenv("STRIPE_SECRET_KEY"),
		Currency:          strings.ToUpper(getEnv("CHECKOUT_CURRENCY", "INR")),

		TaxRate:     getDecimal("TAX_RATE", decimal.NewFromFloat(0.10)),
		ShippingFee: getDecimal("SHIPPING_FEE", decimal.NewFromInt(99)),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
	}
}

// GatewaySecretsPresent indique si les clés du fournisseur de paiement choisi sont renseignées.
func (c *Config) GatewaySecretsPresent() bool {
	switch c.PaymentProvider {
	case "stripe":
		return c.StripeSecretKey != ""
	default:
		return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ %s invalide (%q), valeur par défaut %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ %s invalide (%q), valeur par défaut %s", key, v, fallback)
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Printf("⚠️ %s invalide (%q), valeur par défaut %s", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
