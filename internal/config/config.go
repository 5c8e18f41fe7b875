package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()

	// Defaults.
	v.SetDefault("feed.url", "ws://localhost:8790/feed")
	v.SetDefault("feed.listen", ":8790")
	v.SetDefault("feed.ping_interval", "2s")
	v.SetDefault("camera.id", "cam-1")
	v.SetDefault("camera.fps", 24)
	v.SetDefault("camera.quality", 70)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)

	// Environment variables.
	v.AutomaticEnv()
	v.BindEnv("feed.url", "CAMVIEW_FEED_URL")
	v.BindEnv("feed.listen", "CAMVIEW_FEED_LISTEN")
	v.BindEnv("feed.ping_interval", "CAMVIEW_FEED_PING_INTERVAL")
	v.BindEnv("camera.id", "CAMVIEW_CAMERA_ID")

	// Optional config file.
	v.SetConfigName("camview")
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.camview", "/etc/camview"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("read config file: %s", err))
		}
		// No config file; defaults and env apply.
	}
}

// ViewerConfig holds configuration for the viewer binary.
type ViewerConfig struct {
	FeedURL  string
	CameraID string
	Direct   bool
}

// ParseViewerFlags parses flags for the viewer, layered over config-file,
// env and default values.
func ParseViewerFlags() *ViewerConfig {
	cfg := &ViewerConfig{}
	flag.StringVar(&cfg.FeedURL, "feed", v.GetString("feed.url"), "Feed server WebSocket URL")
	flag.StringVar(&cfg.CameraID, "camera", v.GetString("camera.id"), "Camera ID to view")
	flag.BoolVar(&cfg.Direct, "direct", false, "Receive frames over a direct WebRTC data channel")
	flag.Parse()
	return cfg
}

// CameraConfig holds configuration for the synthetic camera binary.
type CameraConfig struct {
	FeedURL  string
	CameraID string
	FPS      int
	Quality  int
	Width    int
	Height   int
}

// ParseCameraFlags parses flags for the camsim binary.
func ParseCameraFlags() *CameraConfig {
	cfg := &CameraConfig{}
	flag.StringVar(&cfg.FeedURL, "feed", v.GetString("feed.url"), "Feed server WebSocket URL")
	flag.StringVar(&cfg.CameraID, "camera", v.GetString("camera.id"), "Camera ID to publish")
	flag.IntVar(&cfg.FPS, "fps", v.GetInt("camera.fps"), "Target frames per second")
	flag.IntVar(&cfg.Quality, "quality", v.GetInt("camera.quality"), "JPEG quality (1-100)")
	flag.IntVar(&cfg.Width, "width", v.GetInt("camera.width"), "Frame width")
	flag.IntVar(&cfg.Height, "height", v.GetInt("camera.height"), "Frame height")
	flag.Parse()
	return cfg
}

// FeedConfig holds configuration for the feed server binary.
type FeedConfig struct {
	Listen       string
	PingInterval time.Duration
}

// ParseFeedFlags parses flags for the feedd binary.
func ParseFeedFlags() *FeedConfig {
	cfg := &FeedConfig{}
	flag.StringVar(&cfg.Listen, "listen", v.GetString("feed.listen"), "Listen address")
	flag.DurationVar(&cfg.PingInterval, "ping-interval", v.GetDuration("feed.ping_interval"), "Publisher RTT probe interval")
	flag.Parse()
	return cfg
}
