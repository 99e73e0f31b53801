package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings are the process-level knobs read from the environment.
type Settings struct {
	ServerName     string
	ConfigFile     string
	ListenAddr     string
	APIAddr        string
	APIKey         string
	LogLevel       string
	BanDuration    time.Duration
	ReaperInterval time.Duration
	ResultTick     time.Duration
	PoolSize       int
	ProbeTimeout   time.Duration
	DialRate       float64
	DialBurst      int
	Exempt         []string
	SOCKSPorts     []int
	HTTPPorts      []int

	RedisAddr      string
	RedisRateLimit int64
	PubSubProject  string
	PubSubTopic    string
	GeoIPDB        string
}

// LoadSettings preloads envFile (if it exists) into the environment and
// reads Settings. Variables already set in the environment take precedence
// over the file.
func LoadSettings(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "irc.localhost"
	}

	var errs []error
	s := Settings{
		ServerName: getenv("SCAN_SERVER_NAME", hostname),
		ConfigFile: getenv("SCAN_CONFIG_FILE", "unrealircd.conf"),
		ListenAddr: getenv("SCAN_LISTEN_ADDR", ":6667"),
		APIAddr:    getenv("SCAN_API_ADDR", ":8080"),
		APIKey:     os.Getenv("SCAN_API_KEY"),
		LogLevel:   getenv("SCAN_LOG_LEVEL", "info"),
		Exempt:     getenvList("SCAN_EXEMPT", []string{"127.0.0.0/8", "::1/128"}),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		PubSubProject: os.Getenv("BAN_PUBSUB_PROJECT"),
		PubSubTopic:   os.Getenv("BAN_PUBSUB_TOPIC"),
		GeoIPDB:       os.Getenv("GEOIP_DB"),
	}

	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error
	s.BanDuration, err = getenvDuration("SCAN_BAN_DURATION", 24*time.Hour)
	collect(err)
	s.ReaperInterval, err = getenvDuration("SCAN_REAPER_INTERVAL", 3*time.Second)
	collect(err)
	s.ResultTick, err = getenvDuration("SCAN_RESULT_TICK", 100*time.Millisecond)
	collect(err)
	s.ProbeTimeout, err = getenvDuration("SCAN_PROBE_TIMEOUT", 10*time.Second)
	collect(err)
	s.PoolSize, err = getenvInt("SCAN_POOL_SIZE", 256)
	collect(err)
	s.DialBurst, err = getenvInt("SCAN_DIAL_BURST", 50)
	collect(err)
	s.DialRate, err = getenvFloat("SCAN_DIAL_RATE", 200)
	collect(err)
	s.SOCKSPorts, err = getenvPorts("SCAN_SOCKS_PORTS", []int{1080})
	collect(err)
	s.HTTPPorts, err = getenvPorts("SCAN_HTTP_PORTS", []int{3128, 8080, 80})
	collect(err)
	limit, err := getenvInt("REDIS_RATE_LIMIT", 0)
	collect(err)
	s.RedisRateLimit = int64(limit)

	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getenvList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvPorts(key string, fallback []int) ([]int, error) {
	list := getenvList(key, nil)
	if list == nil {
		return fallback, nil
	}
	ports := make([]int, 0, len(list))
	for _, raw := range list {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("%s: invalid port %q", key, raw)
		}
		ports = append(ports, p)
	}
	return ports, nil
}
