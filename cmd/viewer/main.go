package main

import (
	"encoding/json"
	"log"
	"sync"

	"camview/internal/config"
	"camview/internal/direct"
	"camview/internal/display"
	"camview/internal/feed"
	"camview/internal/stream"
)

func main() {
	cfg := config.ParseViewerFlags()

	log.Printf("camview viewer starting")
	log.Printf("  Camera: %s", cfg.CameraID)
	log.Printf("  Feed:   %s", cfg.FeedURL)
	if cfg.Direct {
		log.Printf("  Mode:   direct (WebRTC data channel)")
	}

	var (
		mu   sync.Mutex
		pipe *stream.Pipeline
		dv   *direct.Viewer
	)

	win := display.NewWindow("camview - "+cfg.CameraID, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return pipe == nil || pipe.WaitingFirstFrame()
	})

	cbs := stream.Callbacks{
		OnError: func(msg string) {
			log.Printf("stream error: %s", msg)
		},
		OnMetrics: func(m stream.StreamMetrics) {
			if !m.IsStreaming {
				log.Printf("stream stopped")
				return
			}
			log.Printf("fps=%.1f (avg %.1f) latency=%.1fms/%s (avg %.1f) rtt=%.1fms health=%d",
				m.FPS, m.AvgFPS, m.LatencyMS, m.LatencyKind, m.AvgLatency, m.RTT, m.HealthScore)
		},
	}

	var client *feed.Client
	client = feed.NewClient(cfg.FeedURL, feed.ClientTypeViewer, feed.Handler{
		OnRegistered: func() {
			log.Println("registered with feed server")
			mu.Lock()
			defer mu.Unlock()

			var frames stream.FrameChannel = client
			if cfg.Direct {
				var err error
				dv, err = direct.NewViewer(client, cfg.CameraID)
				if err != nil {
					log.Printf("create direct viewer: %v", err)
					return
				}
				frames = dv
			}

			pipe = stream.NewPipeline(cfg.CameraID, win, frames, client, cbs, stream.Options{})
			if dv != nil {
				if err := dv.Connect(); err != nil {
					log.Printf("direct connect: %v", err)
				}
			}
			if err := pipe.SetConnected(true); err != nil {
				log.Printf("connect pipeline: %v", err)
			}
		},
		OnAnswer: func(from string, payload json.RawMessage) {
			mu.Lock()
			d := dv
			mu.Unlock()
			if d != nil {
				if err := d.HandleAnswer(payload); err != nil {
					log.Printf("handle answer: %v", err)
				}
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			mu.Lock()
			d := dv
			mu.Unlock()
			if d != nil {
				if err := d.HandleICECandidate(payload); err != nil {
					log.Printf("handle ICE candidate: %v", err)
				}
			}
		},
		OnCameraGone: func(cameraID string) {
			if cameraID != cfg.CameraID {
				return
			}
			log.Printf("camera %s went away, waiting for it to return", cameraID)
			mu.Lock()
			p := pipe
			mu.Unlock()
			if p != nil {
				// Full teardown, then a fresh activation so the loading
				// state shows again and nothing stale survives.
				_ = p.SetConnected(false)
				win.Blank()
				_ = p.SetConnected(true)
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

	// Ebitengine RunGame must be on the main goroutine.
	if err := win.Run(); err != nil {
		log.Fatalf("display: %v", err)
	}

	mu.Lock()
	p, d := pipe, dv
	mu.Unlock()
	if p != nil {
		p.Close()
	}
	if d != nil {
		d.Close()
	}
}
