package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	whiteboard "whiteboard/internal/app"
	"whiteboard/internal/config"
	"whiteboard/internal/domain"
)

func main() {
	defaultConfig := filepath.Join(config.DefaultDataDir(), "config.yaml")
	var (
		configPath  = flag.String("config", defaultConfig, "path to the YAML config file")
		session     = flag.String("session", "", "board session id (default: a new board)")
		mcpMode     = flag.Bool("mcp", false, "serve board tools over MCP on stdin/stdout")
		autoApprove = flag.Bool("mcp-auto-approve", false, "run destructive MCP tools without confirmation")
		httpAddr    = flag.String("http", "", "serve the board API and websocket hub on this address (e.g. :8080)")
		exportPath  = flag.String("export", "", "export the session to this file (.png, .jpg or .json) and exit")
		scale       = flag.Float64("scale", 1, "raster scale for -export")
		grid        = flag.Bool("grid", false, "draw the grid in -export output")
	)
	flag.Parse()

	// stdout carries the MCP protocol, so logs go to stderr.
	log.SetOutput(os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := whiteboard.New(cfg, nil)
	if err := app.Startup(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer app.Shutdown()

	if err := run(ctx, app, cfg, *session, *mcpMode, *autoApprove, *httpAddr, *exportPath, domain.ExportOptions{
		Scale:       *scale,
		IncludeGrid: *grid,
	}); err != nil {
		app.Shutdown()
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, app *whiteboard.App, cfg config.Config, session string, mcpMode, autoApprove bool, httpAddr, exportPath string, opts domain.ExportOptions) error {
	switch {
	case exportPath != "":
		if session == "" {
			return fmt.Errorf("-export needs -session")
		}
		if err := app.ExportBoard(session, exportPath, opts); err != nil {
			return err
		}
		log.Printf("[RENDER] exported %s to %s", session, exportPath)
		return nil

	case mcpMode:
		// The HTTP API can run next to the MCP session.
		if httpAddr != "" {
			go func() {
				if err := app.ServeHTTP(ctx, httpAddr); err != nil {
					log.Printf("[SYNC] http: %v", err)
				}
			}()
		}
		return app.ServeMCP(session, autoApprove)

	default:
		if httpAddr == "" {
			httpAddr = cfg.Listen
		}
		return app.ServeHTTP(ctx, httpAddr)
	}
}
