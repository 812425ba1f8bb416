package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cedra_checkout/internal/cache"
	"cedra_checkout/internal/config"
	"cedra_checkout/internal/coupon"
	"cedra_checkout/internal/database"
	"cedra_checkout/internal/gateway"
	"cedra_checkout/internal/handlers"
	"cedra_checkout/internal/metrics"
	"cedra_checkout/internal/notify"
	"cedra_checkout/internal/pricing"
	"cedra_checkout/internal/routes"
	"cedra_checkout/internal/settlement"
	"cedra_checkout/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	if cfg.JWTSecret == "" {
		log.Fatal("❌ JWT_SECRET manquant")
	}
	if !cfg.GatewaySecretsPresent() {
		log.Fatalf("❌ Impossible d'initialiser %s : clés manquantes", cfg.PaymentProvider)
	}
	provider, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("✅ Passerelle %s initialisée", provider.Name())

	database.ConnectDatabases(cfg)
	defer database.CloseScylla()

	st := openStore(cfg)
	m := metrics.New("checkout")

	engine := coupon.NewEngine(st, cache.NewCouponCatalog(database.Redis, cfg.CouponCatalogTTL), cfg.ShippingFee)
	policy := pricing.Policy{TaxRate: cfg.TaxRate, ShippingFee: cfg.ShippingFee}

	committer := settlement.NewCommitter(st, engine, provider, policy, cfg.Currency)
	committer.Locker = cache.NewCommitLocker(database.Redis, cfg.CommitLockTTL)
	committer.Metrics = m
	committer.Notifier = newNotifier(cfg)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handlers.New(st, engine, committer, cache.NewCartStore(database.Redis))
	h.AddressLock = cache.NewCommitLocker(database.Redis, cfg.CommitLockTTL)

	r := gin.Default()
	routes.RegisterRoutes(r, routes.Deps{
		Handler:     h,
		JWTSecret:   []byte(cfg.JWTSecret),
		CouponLimit: cache.NewRateLimiter(database.Redis, cfg.CouponApplyPerMin, time.Minute),
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Println("🚀 Serveur Cedra checkout lancé sur le port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Erreur serveur: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Arrêt du serveur...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ Arrêt forcé: %v", err)
	}
}

func openStore(cfg *config.Config) store.Store {
	if cfg.StoreDriver != "scylla" {
		log.Println("⚠️ Stockage en mémoire : les données ne survivent pas au redémarrage")
		return store.NewMemory()
	}
	users, err := database.Scylla.UsersSession()
	if err != nil {
		log.Fatalf("❌ Session users: %v", err)
	}
	orders, err := database.Scylla.OrdersSession()
	if err != nil {
		log.Fatalf("❌ Session orders: %v", err)
	}
	return store.NewScylla(users, orders)
}

// newNotifier renvoie nil si SMTP n'est pas configuré ; le commit ne notifie alors personne.
func newNotifier(cfg *config.Config) settlement.Notifier {
	if cfg.SMTPHost == "" {
		log.Println("⚠️ SMTP_HOST absent: emails de confirmation désactivés")
		return nil
	}
	var archive notify.Archive
	if database.MinIO != nil {
		archive = notify.NewMinIOArchive(database.MinIO, cfg.ReceiptsBucket, 7*24*time.Hour)
	}
	return notify.NewNotifier(notify.NewSMTPMailer(cfg), archive)
}
