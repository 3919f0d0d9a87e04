package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ankichat/ankichat/internal/anki"
	"github.com/ankichat/ankichat/internal/api"
	"github.com/ankichat/ankichat/internal/assistant"
	"github.com/ankichat/ankichat/internal/cards"
	"github.com/ankichat/ankichat/internal/compaction"
	"github.com/ankichat/ankichat/internal/config"
	"github.com/ankichat/ankichat/internal/decks"
	"github.com/ankichat/ankichat/internal/llm"
	"github.com/ankichat/ankichat/internal/platform/logger"
)

func main() {
	log := logger.New("ankichat")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("anki_connect_url", cfg.AnkiConnectURL).
		Str("llm_model", cfg.LLMModel).
		Msg("Assistant starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// -------- Collaborators --------------
	backend := anki.New(cfg.AnkiConnectURL, cfg.AnkiTimeout)
	languageModel := llm.New(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMTimeout)

	// -------- Services -------------------
	deckService := decks.NewService(backend, log)
	cardService := cards.NewService(backend, deckService, languageModel, cfg.MaxListLimit, log)

	jobStore := compaction.NewStore()
	jobStore.StartSweep(ctx, time.Minute, cfg.TokenTTL)
	engine := compaction.NewEngine(backend, deckService, languageModel, jobStore, compaction.Options{
		MaxLimit:     cfg.MaxCompactLimit,
		TokenTTL:     cfg.TokenTTL,
		CallDelay:    cfg.LLMCallDelay,
		BackupSuffix: cfg.BackupSuffix,
		MarkerTag:    cfg.MarkerTag,
	}, log)

	bot := assistant.New(languageModel, deckService, cardService, engine, cfg, log)

	// -------- Health monitor -------------
	api.StartHealthMonitor(ctx, backend, languageModel, cfg.HealthProbeInterval)

	// -------- Router & Server ------------
	router := api.NewRouter(
		api.NewChatHandler(bot),
		api.NewOpsHandler(engine, deckService),
		api.NewHealthHandler(),
	)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // preview batches wait on rate-limited model calls
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}
