package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/acmedental/scheduling-assistant/internal/agent"
	"github.com/acmedental/scheduling-assistant/internal/cache"
	"github.com/acmedental/scheduling-assistant/internal/calendly"
	"github.com/acmedental/scheduling-assistant/internal/config"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("chat-cli starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	calendlyClient := calendly.NewClient(cfg.CalendlyAPIToken)

	schedCache := cache.New(calendlyClient, cache.Config{
		SyncInterval:    cfg.SyncInterval,
		AvailabilityTTL: cfg.AvailabilityTTL,
		BookingsTTL:     cfg.BookingsTTL,
		MaxSlots:        cfg.MaxSlots,
	})
	schedCache.Start()
	defer schedCache.Stop()

	chatAgent, err := agent.New(agent.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	}, schedCache, calendlyClient)
	if err != nil {
		log.Fatalf("agent init error: %v", err)
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Welcome to Acme Dental Clinic!")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()
	fmt.Println("I'm your AI assistant. I can help you with:")
	fmt.Println("  - Booking a dental check-up appointment")
	fmt.Println("  - Rescheduling or cancelling existing appointments")
	fmt.Println("  - Answering questions about our services")
	fmt.Println()
	fmt.Println("Type 'exit', 'quit', or 'q' to end the session.")
	fmt.Println(strings.Repeat("-", 60))
	fmt.Println()

	threadID := uuid.NewString()
	log.Printf("session started with thread_id=%s", threadID)

	defer func() {
		schedCache.ClearSession(threadID)
		chatAgent.ClearThread(threadID)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println("\nThank you for visiting Acme Dental. Goodbye!")
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit", "quit", "q":
			log.Println("user ended session")
			fmt.Println("\nThank you for visiting Acme Dental. Goodbye!")
			return
		case "stats":
			// Debugging aid, mirrors GET /stats on the server.
			fmt.Printf("\nCache Stats: %+v\n\n", schedCache.GetStats())
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		response, err := chatAgent.Respond(ctx, threadID, input)
		cancel()
		if err != nil {
			log.Printf("error processing message: %v", err)
			fmt.Printf("\nSorry, something went wrong. Please try again.\n\n")
			continue
		}

		fmt.Printf("\nAgent: %s\n\n", response)
	}
}
