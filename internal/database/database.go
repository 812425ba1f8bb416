package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cedra_checkout/internal/config"

	"github.com/gocql/gocql"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
)

// --- Configuration ScyllaDB ---
type ScyllaKeyspaceConfig struct {
	Hosts       []string
	Keyspace    string
	Username    string
	Password    string
	SSLEnabled  bool
	CACertPath  string
	Timeout     time.Duration
	NumConns    int
	Consistency gocql.Consistency
}

type ScyllaManager struct {
	sessions map[string]*gocql.Session // keyspace → session
	configs  map[string]ScyllaKeyspaceConfig
	mu       sync.Mutex
	users    string
	orders   string
}

// --- Variables Globales ---
var (
	Scylla *ScyllaManager
	Redis  *redis.Client
	MinIO  *minio.Client
)

// --- Initialisation ---
func ConnectDatabases(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. ScyllaDB (keyspaces users + orders)
	if cfg.StoreDriver == "scylla" {
		if err := InitScyllaDB(cfg); err != nil {
			log.Fatalf("❌ Échec initialisation ScyllaDB: %v", err)
		}
	} else {
		log.Printf("⚠️ STORE_DRIVER=%s: ScyllaDB ignoré, stockage en mémoire", cfg.StoreDriver)
	}

	// 2. Redis
	connectRedis(ctx, cfg)

	// 3. MinIO (optionnel : archivage des reçus)
	if cfg.MinIOEndpoint != "" {
		connectMinIO(ctx, cfg)
	} else {
		log.Println("⚠️ MINIO_ENDPOINT absent: archivage des reçus désactivé")
	}

	log.Println("✅ Toutes les bases de données sont connectées")
}

// =============================================
// SCYLLA DB
// =============================================

// InitScyllaDB initialise le gestionnaire de sessions ScyllaDB
func InitScyllaDB(cfg *config.Config) error {
	Scylla = &ScyllaManager{
		sessions: make(map[string]*gocql.Session),
		configs:  loadScyllaConfigs(cfg),
		users:    cfg.UsersKeyspace,
		orders:   cfg.OrdersKeyspace,
	}

	for keyspace := range Scylla.configs {
		session, err := Scylla.GetSession(keyspace)
		if err != nil {
			return fmt.Errorf("échec initialisation keyspace %s: %w", keyspace, err)
		}
		if err := ApplySchema(session, keyspace); err != nil {
			return err
		}
	}
	return nil
}

func loadScyllaConfigs(cfg *config.Config) map[string]ScyllaKeyspaceConfig {
	configs := make(map[string]ScyllaKeyspaceConfig)
	for _, ks := range []string{cfg.UsersKeyspace, cfg.OrdersKeyspace} {
		configs[ks] = ScyllaKeyspaceConfig{
			Hosts:       cfg.ScyllaHosts,
			Keyspace:    ks,
			Username:    cfg.ScyllaUsername,
			Password:    cfg.ScyllaPassword,
			SSLEnabled:  cfg.ScyllaSSLEnabled,
			CACertPath:  cfg.ScyllaCACertPath,
			Timeout:     cfg.ScyllaTimeout,
			NumConns:    cfg.ScyllaNumConns,
			Consistency: gocql.Quorum,
		}
	}
	return configs
}

// createScyllaCluster crée une configuration de cluster pour un keyspace
func createScyllaCluster(config ScyllaKeyspaceConfig) (*gocql.ClusterConfig, error) {
	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Consistency = config.Consistency
	// Les LWT (INSERT ... IF NOT EXISTS) de la table orders_by_gateway_order passent par Paxos.
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = config.Timeout
	cluster.NumConns = config.NumConns
	cluster.MaxWaitSchemaAgreement = 30 * time.Second
	cluster.ReconnectInterval = 1 * time.Second

	if config.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	if config.SSLEnabled && config.CACertPath != "" {
		caCert, err := os.ReadFile(config.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("impossible de lire le certificat CA: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("impossible de parser le certificat CA")
		}
		cluster.SslOpts = &gocql.SslOptions{
			Config: &tls.Config{RootCAs: caCertPool, MinVersion: tls.VersionTLS12},
		}
	}

	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())

	return cluster, nil
}

// GetSession retourne une session pour un keyspace donné
func (sm *ScyllaManager) GetSession(keyspace string) (*gocql.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	config, exists := sm.configs[keyspace]
	if !exists {
		return nil, fmt.Errorf("keyspace '%s' non configuré", keyspace)
	}

	if session, exists := sm.sessions[keyspace]; exists && !session.Closed() {
		return session, nil
	}

	cluster, err := createScyllaCluster(config)
	if err != nil {
		return nil, fmt.Errorf("erreur configuration cluster pour %s: %w", keyspace, err)
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("erreur création session pour %s: %w", keyspace, err)
	}

	sm.sessions[keyspace] = session
	log.Printf("✅ Nouvelle session ScyllaDB pour keyspace '%s'", keyspace)

	return session, nil
}

// UsersSession retourne la session du keyspace users (adresses)
func (sm *ScyllaManager) UsersSession() (*gocql.Session, error) {
	return sm.GetSession(sm.users)
}

// OrdersSession retourne la session du keyspace orders (coupons, intents, commandes)
func (sm *ScyllaManager) OrdersSession() (*gocql.Session, error) {
	return sm.GetSession(sm.orders)
}

// CloseScylla ferme toutes les sessions ScyllaDB
func CloseScylla() {
	if Scylla == nil {
		return
	}
	Scylla.mu.Lock()
	defer Scylla.mu.Unlock()

	for keyspace, session := range Scylla.sessions {
		session.Close()
		log.Printf("🔌 Session ScyllaDB fermée pour keyspace '%s'", keyspace)
	}
}

// =============================================
// REDIS
// =============================================
func connectRedis(ctx context.Context, cfg *config.Config) {
	Redis = redis.NewClient(&redis.Options{
		Addr:         cfg.RedisHost,
		Password:     cfg.RedisPassword,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if err := Redis.Ping(ctx).Err(); err != nil {
		log.Fatal("❌ Erreur connexion Redis:", err)
	}
	log.Println("✅ Connecté à Redis")
}

// =============================================
// MINIO
// =============================================
func connectMinIO(ctx context.Context, cfg *config.Config) {
	client, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
	})
	if err != nil {
		log.Fatal("❌ Erreur connexion MinIO:", err)
	}

	bucketName := cfg.ReceiptsBucket
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("❌ Erreur vérification bucket MinIO:", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("❌ Erreur création bucket MinIO:", err)
		}
		log.Println("🪣 Bucket créé :", bucketName)
	} else {
		log.Println("🪣 Bucket MinIO déjà présent :", bucketName)
	}

	MinIO = client
	log.Println("✅ Connecté à MinIO :", cfg.MinIOEndpoint)
}
