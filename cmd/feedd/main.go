package main

import (
	"log"
	"net/http"

	"camview/internal/config"
	"camview/internal/feed"
)

func main() {
	cfg := config.ParseFeedFlags()

	hub := feed.NewHub(cfg.PingInterval)
	hub.Start()
	defer hub.Stop()

	mux := http.NewServeMux()
	mux.Handle("/feed", hub)

	log.Printf("feedd listening on %s", cfg.Listen)
	log.Fatal(http.ListenAndServe(cfg.Listen, mux))
}
