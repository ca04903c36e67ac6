package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/versecast/backend/internal/config"
	"github.com/versecast/backend/internal/demo"
	"github.com/versecast/backend/internal/export"
	"github.com/versecast/backend/internal/renderpage"
	"github.com/versecast/backend/internal/session"
	"github.com/versecast/backend/internal/ws"
)

func main() {
	demoMode := flag.Bool("demo", false, "Generate synthetic overlay traffic")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	manager := session.NewManager()

	exportURL := func(sessionID string) string {
		return fmt.Sprintf("%s/atem-live/%s.png", cfg.BaseURL(), export.SafeName(sessionID))
	}

	var exporter *export.Exporter
	pins := export.NewPinSet(cfg.Export.PinnedSessions)
	if cfg.Export.Enabled {
		if err := os.MkdirAll(cfg.Export.OutDir, 0o755); err != nil {
			log.Fatalf("Failed to create export dir: %v", err)
		}
		engine := export.NewChromeEngine(cfg.Export.RenderURL, cfg.Export.Width, cfg.Export.Height)
		webhook := export.NewWebhook(cfg.Webhook)
		pub := export.NewPublisher(cfg.Export.OutDir, cfg.Export.DefaultAlpha, webhook, exportURL)
		exporter = export.NewExporter(cfg.Export, engine, pub, pins, manager.Snapshot)
		manager.SetOnEmpty(exporter.Cancel)
		log.Printf("export pipeline enabled: %dx%d -> %s", cfg.Export.Width, cfg.Export.Height, cfg.Export.OutDir)
	} else {
		exporter = export.NewExporter(cfg.Export, nil, nil, pins, manager.Snapshot)
		log.Println("export pipeline disabled")
	}

	server := ws.NewServer(cfg, manager, exporter, exportURL)
	server.SetRenderPage(renderpage.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *demoMode {
		log.Println("Starting in demo mode")
		gen := demo.NewGenerator(manager, exporter)
		gen.Start(ctx)
	}

	// Config edits while running only retarget the pin set; everything else
	// needs a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			pins.Replace(next.Export.PinnedSessions)
			log.Printf("reloaded pinned sessions: %v", pins.List())
		})
		if err != nil {
			log.Printf("config watch unavailable: %v", err)
		}
	}()

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		exporter.Close()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
