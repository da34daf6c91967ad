package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tijara.org/internal/auth"
	"tijara.org/internal/httpapi"
	"tijara.org/internal/notify"
	"tijara.org/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

const pruneInterval = time.Hour

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("TIJARA_PG_DSN")
	if dsn == "" {
		log.Fatal("TIJARA_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Missing secrets abort startup; they are never a per-request failure.
	secrets, err := auth.SecretsFromEnv()
	if err != nil {
		log.Fatalf("load signing secrets: %v", err)
	}
	tokens, err := auth.NewTokenService(secrets)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	mailer := notify.NewMailer(notify.LogSender{}, 256)
	svc, err := auth.NewService(auth.NewPGStore(db), tokens, auth.WithNotifier(mailer))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, version)

	addr := os.Getenv("TIJARA_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Housekeeping: drop revocation records past their refresh horizon.
	pruneCtx, stopPrune := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				n, err := svc.PruneExpired(pruneCtx)
				if err != nil {
					log.Printf("prune revoked tokens: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("pruned %d expired revocation records", n)
				}
			}
		}
	}()

	log.Printf("Starting tijara-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	stopPrune()
	mailer.Close()
	_ = db.Close()
	log.Println("Stopped")
}
