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

	"github.com/joho/godotenv"

	"github.com/ahmedesmail07/ai-agent-platform/internal/chat"
	"github.com/ahmedesmail07/ai-agent-platform/internal/config"
	"github.com/ahmedesmail07/ai-agent-platform/internal/gateway"
	"github.com/ahmedesmail07/ai-agent-platform/internal/httpapi"
	"github.com/ahmedesmail07/ai-agent-platform/internal/observability"
	"github.com/ahmedesmail07/ai-agent-platform/internal/store"
	"github.com/ahmedesmail07/ai-agent-platform/internal/voicechat"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()

	var gw gateway.Gateway
	if cfg.OpenAIAPIKey != "" {
		gw = gateway.NewOpenAI(gateway.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
		log.Printf("completion gateway: openai")
	} else {
		gw = gateway.NewMock()
		log.Printf("completion gateway: mock (OPENAI_API_KEY not set)")
	}

	chatSvc := chat.NewService(st, gw, chat.Defaults{
		Model:       cfg.DefaultModel,
		MaxTokens:   cfg.DefaultMaxTokens,
		Temperature: cfg.DefaultTemperature,
	})
	voiceSvc := voicechat.NewService(st, chatSvc, gw, cfg.AudioDir, cfg.TTSVoice)

	api := httpapi.New(cfg, st, chatSvc, voiceSvc, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go audioJanitor(runCtx, voiceSvc, cfg.AudioMaxAge)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// audioJanitor sweeps synthesized audio files past their retention age.
func audioJanitor(ctx context.Context, voiceSvc *voicechat.Service, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if deleted := voiceSvc.CleanupOldAudio(maxAge); deleted > 0 {
				log.Printf("audio janitor removed %d files", deleted)
			}
		}
	}
}
