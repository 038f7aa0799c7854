package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/trackbind/internal/binder"
	"github.com/banshee-data/trackbind/internal/config"
	"github.com/banshee-data/trackbind/internal/hostloop"
	"github.com/banshee-data/trackbind/internal/httputil"
	"github.com/banshee-data/trackbind/internal/interact"
	"github.com/banshee-data/trackbind/internal/journal"
	"github.com/banshee-data/trackbind/internal/scene"
	"github.com/banshee-data/trackbind/internal/serialmux"
	"github.com/banshee-data/trackbind/internal/tracking"
	"github.com/banshee-data/trackbind/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the JSON configuration file")
	devMode     = flag.Bool("dev", false, "Replay the fixtures file instead of opening the serial port")
	listen      = flag.String("listen", "", "Listen address for the debug server (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// app is the wired scene: the binder and the overlap registry fed by one
// host loop.
type app struct {
	scene    *scene.Scene
	feed     *tracking.Feed
	binder   *binder.Binder
	registry *interact.Registry
	loop     *hostloop.Loop
}

func build(cfg *config.Config, rec binder.Recorder, onStatus interact.StatusFunc) (*app, error) {
	a := &app{
		scene:    scene.New(),
		feed:     tracking.NewFeed(),
		registry: interact.NewRegistry(onStatus),
	}
	a.binder = binder.New(binder.Config{
		Source:       a.feed,
		Instantiator: binder.FromScene(a.scene),
		Templates:    cfg.Templates,
		Recorder:     rec,
	})
	if err := a.binder.Setup(); err != nil {
		return nil, err
	}
	a.loop = hostloop.New(hostloop.Config{
		Feed:           a.feed,
		Registry:       a.registry,
		Scene:          a.scene,
		Binder:         a.binder,
		StatusInterval: cfg.GetStatusInterval(),
	})
	log.Printf("registered %d bound entities as interactables", a.loop.RegisterBound())
	return a, nil
}

func (a *app) attachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("version", func() any { return version.String() })
	debug.KVFunc("host loop", func() any { return a.loop.Stats() })
	debug.KVFunc("entities", func() any { return a.scene.Len() })

	debug.HandleFunc("bindings", "Trackable label bindings (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, a.binder.Snapshot())
	})
	debug.HandleFunc("interactables", "Overlap status per interactable (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, a.registry.Snapshot())
	})
}

func openSensor(cfg *config.Config, dev bool) (serialmux.SerialMuxInterface, error) {
	if dev {
		data, err := os.ReadFile(cfg.GetFixturesPath())
		if err != nil {
			return nil, fmt.Errorf("failed to open fixtures file: %w", err)
		}
		lines := serialmux.ReadFixtureLines(data)
		if len(lines) == 0 {
			return nil, fmt.Errorf("fixtures file %s has no lines", cfg.GetFixturesPath())
		}
		return serialmux.NewReplaySerialMux(lines, cfg.GetReplayInterval(), true), nil
	}
	mux, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.GetSerialOptions())
	if err != nil {
		return nil, err
	}
	return mux, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	addr := cfg.GetListen()
	if *listen != "" {
		addr = *listen
	}

	sensor, err := openSensor(cfg, *devMode)
	if err != nil {
		log.Fatalf("failed to open sensor link: %v", err)
	}
	defer sensor.Close()

	jr, err := journal.Open(cfg.GetJournalPath(), nil)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer jr.Close()

	a, err := build(cfg, jr, jr.OnStatus)
	if err != nil {
		log.Fatalf("failed to set up binder: %v", err)
	}
	defer a.binder.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// subscribe before monitoring starts so the first lines are not missed
	id, lines := sensor.Subscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sensor.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor sensor link: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sensor.Unsubscribe(id)
		if err := a.loop.Run(ctx, lines); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("host loop stopped: %v", err)
		}
		log.Print("host loop terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		a.attachAdminRoutes(mux)
		sensor.AttachAdminRoutes(mux)
		jr.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    addr,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
