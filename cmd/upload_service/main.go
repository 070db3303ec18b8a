package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/waifuvault/WaifuFiles/internal/chunkstore"
	"github.com/waifuvault/WaifuFiles/internal/restrictions"
	"github.com/waifuvault/WaifuFiles/internal/server"
	"github.com/waifuvault/WaifuFiles/internal/services"
	"github.com/waifuvault/WaifuFiles/internal/settings"
	"github.com/waifuvault/WaifuFiles/internal/vault"
	"github.com/waifuvault/WaifuFiles/pkg/cleanup"
)

func main() {
	cfg := settings.GetConfig()
	slog.SetLogLoggerLevel(slog.Level(cfg.GetInt("server.log_level")))

	bucketToken := cfg.GetString("vault.bucket_token")
	if bucketToken == "" {
		log.Println("warning: vault.bucket_token is not configured, finalize requests will fail")
	}

	store := chunkstore.New(cfg.GetString("storage.tmp_root"))
	vaultClient := vault.New(cfg.GetString("vault.endpoint"), bucketToken)
	uploadService := services.NewUploadService(services.UploadServiceConfig{
		Store:           store,
		Vault:           vaultClient,
		MaxChunkSize:    cfg.GetInt64("upload.chunk_size"),
		MaxAssembleSize: cfg.GetInt64("upload.max_assemble_size"),
		HasBucketToken:  bucketToken != "",
	})
	restrictionsService := restrictions.New(vaultClient)

	srv := server.New(server.Config{
		Uploads:      uploadService,
		Restrictions: restrictionsService,
		MaxChunkSize: cfg.GetInt64("upload.chunk_size"),
	})

	addr := cfg.GetString("server.address")
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Routes(cfg.GetBool("server.cloudflare_ips")),
	}

	cleanup.Register(&cleanup.Job{
		Name: "stopping server",
		Func: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(ctx)
		},
	})

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer cancel()
	errCh := make(chan error, 1)

	go func() {
		log.Printf("running server at %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		break
	case err := <-errCh:
		log.Printf("server error: %s", err.Error())
		errCh = nil
		break
	}
	log.Println("shutting down")
	cleanup.CleanUp()
	log.Println("service stopped")
}
