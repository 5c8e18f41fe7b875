package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"camview/internal/config"
	"camview/internal/direct"
	"camview/internal/encoder"
	"camview/internal/feed"
	"camview/internal/pattern"
)

func main() {
	cfg := config.ParseCameraFlags()

	log.Printf("camsim starting")
	log.Printf("  Camera ID: %s", cfg.CameraID)
	log.Printf("  Feed:      %s", cfg.FeedURL)
	log.Printf("  FPS:       %d", cfg.FPS)
	log.Printf("  Quality:   %d", cfg.Quality)
	log.Printf("  Size:      %dx%d", cfg.Width, cfg.Height)

	gen := pattern.NewGenerator(cfg.Width, cfg.Height)
	enc := encoder.NewJPEGEncoder(cfg.Quality)

	// Direct viewing peers, keyed by viewer client ID.
	var peersMu sync.Mutex
	peers := make(map[string]*direct.Host)

	var client *feed.Client
	client = feed.NewClient(cfg.FeedURL, feed.ClientTypeCamera, feed.Handler{
		OnRegistered: func() {
			log.Println("registered with feed server")
			if err := client.Publish(cfg.CameraID); err != nil {
				log.Printf("publish camera: %v", err)
			}
		},
		OnOffer: func(from string, payload json.RawMessage) {
			log.Printf("direct offer from %s", from)
			host, err := direct.NewHost(client, from)
			if err != nil {
				log.Printf("create direct host: %v", err)
				return
			}
			if err := host.HandleOffer(payload); err != nil {
				log.Printf("handle offer: %v", err)
				host.Close()
				return
			}
			peersMu.Lock()
			if old := peers[from]; old != nil {
				old.Close()
			}
			peers[from] = host
			peersMu.Unlock()
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			peersMu.Lock()
			host := peers[from]
			peersMu.Unlock()
			if host != nil {
				if err := host.HandleICECandidate(payload); err != nil {
					log.Printf("handle ICE candidate: %v", err)
				}
			}
		},
		OnError: func(msg string) {
			log.Printf("feed error: %s", msg)
		},
	})

	if err := client.Connect(); err != nil {
		log.Fatalf("feed connect: %v", err)
	}
	defer client.Close()

	stop := make(chan struct{})
	go streamFrames(cfg, gen, enc, client, &peersMu, peers, stop)

	log.Printf("camera ready: %s", cfg.CameraID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down...")
	close(stop)
	peersMu.Lock()
	for _, host := range peers {
		host.Close()
	}
	peersMu.Unlock()
}

// streamFrames renders, encodes and publishes frames at the target rate,
// attaching measured pacing metrics to each one.
func streamFrames(cfg *config.CameraConfig, gen *pattern.Generator, enc *encoder.JPEGEncoder, client *feed.Client, peersMu *sync.Mutex, peers map[string]*direct.Host, stop <-chan struct{}) {
	targetFPS := cfg.FPS
	if targetFPS <= 0 {
		targetFPS = 24
	}
	interval := time.Second / time.Duration(targetFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pace := newPaceTracker(float64(targetFPS))
	var seq int64

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		captured := time.Now()
		img := gen.Frame(seq)
		data, err := enc.Encode(img)
		if err != nil {
			log.Printf("encode frame: %v", err)
			continue
		}

		fps, latency, kind := pace.observe(captured, time.Since(captured))
		payload := feed.FramePayload{
			Data:        data,
			Sequence:    seq,
			CapturedAt:  captured.UnixMilli(),
			FPS:         fps,
			LatencyMS:   latency,
			LatencyKind: string(kind),
			HealthScore: healthScore(fps, float64(targetFPS), latency),
		}
		seq++

		if err := client.SendFrame(cfg.CameraID, payload); err != nil {
			log.Printf("send frame: %v", err)
		}

		peersMu.Lock()
		for _, host := range peers {
			if host.Ready() {
				_ = host.SendFrame(cfg.CameraID, payload)
			}
		}
		peersMu.Unlock()
	}
}

// healthScore folds FPS attainment and processing latency into the 0-100
// composite the viewer shows.
func healthScore(fps, targetFPS, latencyMS float64) int {
	fpsScore := 1.0
	if targetFPS > 0 && fps < targetFPS {
		fpsScore = fps / targetFPS
	}
	latScore := 1.0 - latencyMS/250.0
	if latScore < 0 {
		latScore = 0
	}
	score := int(100 * (0.6*fpsScore + 0.4*latScore))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
