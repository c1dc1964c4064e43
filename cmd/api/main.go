package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/Carnacky79/energy-optimizer-v2/internal/config"
	"github.com/Carnacky79/energy-optimizer-v2/internal/dbmigrate"
	"github.com/Carnacky79/energy-optimizer-v2/internal/httpserver"
)

func main() {
	cfg := config.Load()

	printStartupBanner(cfg)

	if cfg.RunMigrationsOnStartup {
		runStartupMigrations(cfg)
	}

	validateProductionConfig(cfg)

	server := httpserver.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := server.Start(ctx)
	if closeErr := server.Close(); closeErr != nil {
		log.Printf("WARN shutdown: close storage: %v", closeErr)
	}
	if err != nil {
		log.Fatalf("FATAL http: %v", err)
	}
	log.Println("INFO shutdown: complete")
}

func runStartupMigrations(cfg *config.Config) {
	target, err := dbmigrate.SelectTarget(cfg, true)
	if err != nil {
		log.Fatalf("FATAL startup migrations: %v", err)
	}
	if target.Warning != "" {
		log.Printf("WARN startup migrations: %s", target.Warning)
	}

	log.Printf("startup migrations: command=up using=%s", target.Source)
	if err := dbmigrate.Run("up", target.URL, dbmigrate.DefaultMigrationsDir); err != nil {
		log.Fatalf("FATAL startup migrations failed: %v", err)
	}
	log.Printf("startup migrations: completed")
}

// printStartupBanner logs the resolved configuration once. Secrets are masked.
func printStartupBanner(cfg *config.Config) {
	log.Println("========== Energy Optimizer API ==========")
	log.Printf("  env              = %s", cfg.Env)
	log.Printf("  port             = %d", cfg.Port)

	// ---- Database ----
	log.Println("---- database ----")
	log.Printf("  runtime_url      = %s", describeDBURL(cfg.DatabaseURL, cfg.DatabaseURLPooled))
	log.Printf("  pooled           = %s", setOrNot(cfg.DatabaseURLPooled))
	log.Printf("  direct           = %s", setOrNot(cfg.DatabaseURLDirect))
	log.Printf("  migrations_on_startup = %t", cfg.RunMigrationsOnStartup)
	if cfg.RunMigrationsOnStartup {
		if target, err := dbmigrate.SelectTarget(cfg, true); err == nil {
			log.Printf("  migrations_via   = %s", target.Source)
		} else {
			log.Printf("  migrations_via   = (will fail: %v)", err)
		}
	}

	// ---- Auth ----
	log.Println("---- auth ----")
	log.Printf("  jwt_secret       = %s", secretStatus(cfg.JWTSecret, "change_me"))
	log.Printf("  jwt_issuer       = %s", cfg.JWTIssuer)
	log.Printf("  jwt_ttl_minutes  = %d", cfg.JWTTTLMinutes)

	// ---- Blob / S3 ----
	log.Println("---- blob ----")
	log.Printf("  blob_mode        = %s", cfg.Blob.Mode)
	if cfg.Blob.Mode == config.BlobModeSQLite || cfg.Blob.Mode == config.BlobModeAuto {
		log.Printf("  sqlite_path      = %s", nonEmptyOrDash(cfg.Blob.SQLitePath))
	}
	if cfg.Blob.Mode != config.BlobModeMemory {
		log.Printf("  s3: %s", cfg.Blob.S3.DiagnosticsSummary())
	}

	// ---- Guests / quotas ----
	log.Println("---- reports ----")
	log.Printf("  guest_ttl_hours  = %d", cfg.Guest.TTLHours)
	log.Printf("  quota            = guest:%s free:%s premium:%s",
		limitOrUnlimited(cfg.Quota.GuestReports),
		limitOrUnlimited(cfg.Quota.FreeReports),
		limitOrUnlimited(cfg.Quota.PremiumReports))
	log.Printf("  page_size_max    = %d", cfg.ReportsPageSizeMax)
	log.Printf("  public_base_url  = %s", cfg.PublicBaseURL)
	log.Printf("  snowflake_node   = %d", cfg.SnowflakeNode)
	log.Printf("  analytics_buffer = %d", cfg.AnalyticsBuffer)

	log.Println("==========================================")
}

// validateProductionConfig performs fatal checks that only matter in non-local envs.
func validateProductionConfig(cfg *config.Config) {
	isProd := cfg.Env == "production" || cfg.Env == "prod" || cfg.Env == "staging"

	if cfg.Blob.Mode == config.BlobModeS3 {
		if missing := cfg.Blob.S3.MissingRequired(); len(missing) > 0 {
			log.Fatalf("FATAL blob: BLOB_MODE=s3 but S3 config is incomplete, missing: %s", strings.Join(missing, ", "))
		}
	}

	if isProd && cfg.JWTSecret == "change_me" {
		log.Fatalf("FATAL auth: JWT_SECRET must not be 'change_me' in %s", cfg.Env)
	}

	// гостевые отчёты в памяти процесса не переживут рестарт
	if isProd && cfg.Blob.Mode == config.BlobModeMemory {
		log.Printf("WARN blob: BLOB_MODE=memory in %s, guest reports are lost on restart", cfg.Env)
	}

	if isProd && cfg.DatabaseURL == "" {
		log.Fatalf("FATAL db: no DATABASE_URL configured in %s", cfg.Env)
	}
}

// ---- helpers (no secrets) ----

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

func nonEmptyOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func limitOrUnlimited(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

func secretStatus(v, insecureDefault string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "not set"
	}
	if v == insecureDefault {
		return fmt.Sprintf("set (DEFAULT, insecure '%s')", insecureDefault)
	}
	return "set (custom)"
}

func describeDBURL(runtime, pooled string) string {
	if runtime == "" {
		return "not set (will use in-memory storage)"
	}
	if pooled != "" && runtime == pooled {
		return "set (via DATABASE_URL_POOLED)"
	}
	return "set"
}
