package main

import (
	"context"
	"crypto/rand"
	"log"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/subosito/gotenv"

	"promptrelay/adapters/http"
	"promptrelay/adapters/llm"
	"promptrelay/adapters/session"
	"promptrelay/usecase"
)

func main() {
	gotenv.Load()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Sessions signed with an ephemeral secret survive only as long as
	// the process, unless SESSION_SECRET pins one.
	secret := []byte(os.Getenv("SESSION_SECRET"))
	if len(secret) == 0 {
		secret = make([]byte, 24)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("generating session secret: %v", err)
		}
	}

	gemini, err := llm.NewGeminiClient(context.Background(), apiKey)
	if err != nil {
		log.Fatalf("initializing gemini client: %v", err)
	}

	svc := usecase.NewChatService(gemini)

	sessions := session.NewStore()
	go sessions.RunJanitor()

	handler := http.NewChatHandler(svc, sessions, secret)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = http.ErrorHandler

	// Security middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("1MB"))
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20))) // 20 requests per minute

	e.GET("/", handler.Index, handler.SessionMiddleware)
	e.GET("/healthz", handler.HealthCheck)
	e.POST("/ask", handler.Ask, handler.SessionMiddleware)

	log.Println("Starting server on :" + port)
	log.Println("Available endpoints:")
	log.Println("  GET  /          - Chat page")
	log.Println("  GET  /healthz   - Health check")
	log.Println("  POST /ask       - Run one prompt-chain turn")
	log.Fatal(e.Start(":" + port))
}
