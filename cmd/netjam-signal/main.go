// Command netjam-signal runs the room-discovery signaling server that
// peers use to find each other before moving to direct UDP audio.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"netjam/internal/signaling"
)

func main() {
	addr := flag.String("addr", ":8080", "WebSocket listen address")
	idleTimeout := flag.Duration("idle-timeout", 30*time.Second, "HTTP idle timeout")
	flag.Parse()

	srv := signaling.NewServer()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.ServeHTTP)

	httpServer := &http.Server{
		Addr:        *addr,
		Handler:     mux,
		IdleTimeout: *idleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("[signal] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("[signal] listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[signal] %v", err)
	}
}
