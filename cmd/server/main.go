package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/api"
	"github.com/tilescope/tilescope/backend-go/internal/collab"
	"github.com/tilescope/tilescope/backend-go/internal/config"
	"github.com/tilescope/tilescope/backend-go/internal/metrics"
	"github.com/tilescope/tilescope/backend-go/internal/store"
	"github.com/tilescope/tilescope/backend-go/internal/tiles"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		slog.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Elements drawn over the websocket go through the same store as the API.
	saveElement := func(ctx context.Context, annotationID string, el annotation.Element) (annotation.Element, error) {
		stored, err := st.AddElements(ctx, annotationID, []annotation.Element{el})
		if err != nil {
			return annotation.Element{}, err
		}
		metrics.AddElementsCreated(len(stored))
		return stored[0], nil
	}

	hub := collab.NewHub(saveElement)
	go hub.Run(ctx)

	handler := api.NewHandler(st, hub, cfg.PageLimit)
	tileHandler := tiles.NewHandler(cfg.TileDir, cfg.TileSize)

	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(metrics.Middleware)
	handler.Register(apiRouter)
	tileHandler.Register(apiRouter)

	// Left outside the metrics middleware; its recorder cannot hijack.
	r.HandleFunc("/ws/items/{itemId}", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, hub, cfg.Origins())
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", addr, "store", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request, hub *collab.Hub, origins []string) {
	itemID := mux.Vars(r)["itemId"]

	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = "anon-" + uuid.New().String()[:8]
	}
	displayName := r.URL.Query().Get("name")
	if displayName == "" {
		displayName = "Anonymous"
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: origins,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := collab.NewClient(hub, conn, userID, displayName, itemID, uuid.New().String())
	if err := client.Serve(r.Context()); err != nil {
		slog.Debug("websocket closed", "item", itemID, "error", err)
	}
}
