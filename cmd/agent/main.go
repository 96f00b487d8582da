package main

import (
	"flag"
	"log"
	"os"

	"offline-sync-agent/internal/config"
	"offline-sync-agent/internal/database"
	"offline-sync-agent/internal/engine"
	"offline-sync-agent/internal/routes"
)

func main() {
	configPath := flag.String("config", "agent.yaml", "path to the agent configuration file")
	dbPath := flag.String("db", "offline-sync.db", "path to the durable store")
	flag.Parse()

	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("Failed to load config: ", err)
		}
		cfg = loaded
	}
	if cfg.Origin == "" {
		log.Fatal("origin is required (set it in the config file)")
	}

	db, err := database.Open(*dbPath)
	if err != nil {
		log.Fatal("Failed to open durable store: ", err)
	}

	e := engine.New(cfg, db)
	e.Activate()

	ginRoutes := routes.Setup(e)

	log.Printf("Offline sync agent for %s starting on %s", cfg.Origin, cfg.Listen)
	log.Println("Endpoints:")
	log.Println("  POST   /session")
	log.Println("  POST   /control")
	log.Println("  GET    /control/events")
	log.Println("  POST   /push/display")
	log.Println("  POST   /push/click")
	log.Println("  GET    /health")
	log.Println("  *      (intercepted application traffic)")

	if err := ginRoutes.Run(cfg.Listen); err != nil {
		log.Fatal("Failed to start agent: ", err)
	}
}
