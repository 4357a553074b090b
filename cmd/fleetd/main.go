package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"proxy-fleet/pkg/api"
	"proxy-fleet/pkg/archive"
	"proxy-fleet/pkg/config"
	"proxy-fleet/pkg/db"
	"proxy-fleet/pkg/engine"
	"proxy-fleet/pkg/fleet"
	"proxy-fleet/pkg/model"
	"proxy-fleet/pkg/version"
)

func main() {
	cfg := config.Load()

	addr := flag.String("addr", ":8080", "listen address")
	engineURL := flag.String("engine", cfg.EngineURL, "engine external controller base URL (env ENGINE_URL)")
	engineSecret := flag.String("engine-secret", cfg.EngineSecret, "engine controller secret (env ENGINE_SECRET)")
	consulService := flag.String("engine-consul-service", cfg.EngineConsulService, "resolve engine URL from this consul service (requires build tag consul)")
	refreshInterval := flag.Duration("refresh-interval", 0, "if >0, refresh the snapshot periodically (e.g., 30s)")
	requireAuth := flag.Bool("auth", false, "require JWT auth on the API (needs the MySQL user store)")
	tlsCert := flag.String("tls-cert", "", "TLS cert path (enables HTTPS if set with --tls-key)")
	tlsKey := flag.String("tls-key", "", "TLS key path (enables HTTPS if set with --tls-cert)")
	clientCA := flag.String("client-ca", "", "require and verify client certs using this CA (optional)")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("fleetd version=%s", version.Build)
		return
	}

	if *consulService != "" {
		if resolved, err := engine.Locate(cfg.ConsulAddr, *consulService); err != nil {
			log.Printf("consul engine lookup failed: %v; using %s", err, *engineURL)
		} else {
			log.Printf("engine resolved from consul: %s", resolved)
			*engineURL = resolved
		}
	}

	client := engine.NewClient(*engineURL, *engineSecret)

	var ar archive.Store
	if cfg.ArchivePath != "" {
		sq, err := archive.OpenSQLite(cfg.ArchivePath)
		if err != nil {
			log.Fatalf("archive open failed: %v", err)
		}
		defer sq.Close()
		ar = sq
	} else {
		ar = archive.NewMemoryStore()
	}

	mgr := fleet.NewManager(client, cfg.Settings, ar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Refresh(ctx); err != nil {
		log.Printf("initial refresh failed: %v", err)
	}
	if *refreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(*refreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := mgr.Refresh(ctx); err != nil {
						log.Printf("periodic refresh failed: %v", err)
					}
				}
			}
		}()
	}

	hub := api.NewEventHub()
	mgr.Subscribe(func(s *model.Snapshot) {
		hub.Broadcast(api.EventMessage{Type: "snapshot", Payload: s})
	})

	feed, err := engine.NewConnectionsFeed(*engineURL, *engineSecret, func(c model.ConnectionsSnapshot) {
		hub.Broadcast(api.EventMessage{Type: "connections", Payload: c})
	})
	if err != nil {
		log.Fatalf("connections feed setup failed: %v", err)
	}
	feed.Start()
	defer feed.Stop()

	mux := http.NewServeMux()
	if *requireAuth {
		gdb, err := db.Init()
		if err != nil {
			log.Fatalf("user store init failed: %v", err)
		}
		(&api.AuthHandler{DB: gdb}).RegisterRoutes(mux)
	}
	api.RegisterRoutes(mux, mgr, ar, hub, *requireAuth)
	mux.Handle("/ui/", http.StripPrefix("/ui/", http.FileServer(http.Dir("web"))))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("fleetd listening on %s (engine=%s)", *addr, *engineURL)
	if *tlsCert != "" && *tlsKey != "" {
		if *clientCA != "" {
			tlsCfg, errTLS := api.ServerTLSConfig(*tlsCert, *tlsKey, *clientCA)
			if errTLS != nil {
				log.Fatalf("failed to build TLS config: %v", errTLS)
			}
			srv.TLSConfig = tlsCfg
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		}
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
}
