package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/backend"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/config"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/dialog"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/finance"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/logger"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/sanitize"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/setup"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	st, err := backend.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to open store")
	}
	defer st.Close()

	om, err := oracle.NewGemini(ctx, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	router := dialog.NewRouter(om, logger.WithComponent(log, "router"))
	resolver := finance.NewResolver(st, om, logger.WithComponent(log, "finance"), cfg.HistoryWindow)
	onboarding := setup.NewController(st, om, logger.WithComponent(log, "setup"))
	sanitizer := sanitize.New(om, logger.WithComponent(log, "sanitize"), cfg.MaxResponseLen)
	workflow := dialog.NewWorkflow(st, router, resolver, onboarding, sanitizer, logger.WithComponent(log, "workflow"))

	userID := os.Getenv("JARVIS_USER_ID")
	if userID == "" {
		userID = "local"
	}

	log.Info().
		Str("backend", cfg.Backend).
		Str("model", cfg.GeminiModel).
		Str("user_id", userID).
		Msg("Jarvis started")

	fmt.Println("Jarvis — assistente de gastos pessoais. Digite sua mensagem (Ctrl+D para sair).")
	runREPL(ctx, workflow, userID)
}

func runREPL(ctx context.Context, workflow *dialog.Workflow, userID string) {
	scanner := bufio.NewScanner(os.Stdin)
	var state dialog.State

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}

		var reply string
		reply, state = workflow.HandleTurn(ctx, userID, message, state)
		fmt.Println(reply)
		fmt.Println()
	}
	fmt.Println("\nAté mais! 👋")
}
