package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docassist-be/internal/bootstrap"
	"docassist-be/internal/config"
	"docassist-be/internal/server"
	"docassist-be/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer (opt-in with OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(cfg.App)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Tracer shutdown error: %v", err)
		}
	}()

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)
	defer container.Close()

	// 4. Start Background Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := container.Start(ctx); err != nil {
		log.Panicf("Unable to start background services: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
