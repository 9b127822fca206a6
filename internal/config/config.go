package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Default configuration values (production)
const (
	DefaultServerURL = "https://send.xxsfish.com/"
	DefaultShareURL  = "https://send.xxsfish.com/"
	DefaultSTUN      = "stun:stun.l.google.com:19302"

	DefaultRendezvousTimeout = 60 * time.Second
	DefaultPollInterval      = time.Second
	DefaultConnectTimeout    = 30 * time.Second
)

// Config holds application configuration
type Config struct {
	// ServerURL is the base URL of the room coordination service
	ServerURL string

	// ShareURL is the base URL share links are built from
	ShareURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// RendezvousTimeout bounds how long a sender waits for a receiver.
	// It is consumed as a whole number of PollInterval ticks.
	RendezvousTimeout time.Duration
	PollInterval      time.Duration
	ConnectTimeout    time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL         string
	ShareURL          string
	STUNServer        string
	TURNServer        string
	TURNUser          string
	TURNPass          string
	ForceRelay        bool
	RendezvousTimeout time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	serverURL := pick(opts.ServerURL, "LINKDROP_SERVER", DefaultServerURL)
	if err := validateBaseURL(serverURL); err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}

	shareURL := pick(opts.ShareURL, "LINKDROP_SHARE_URL", DefaultShareURL)
	if err := validateBaseURL(shareURL); err != nil {
		return nil, fmt.Errorf("share url: %w", err)
	}

	timeout := opts.RendezvousTimeout
	if timeout == 0 {
		if v, ok := os.LookupEnv("LINKDROP_TIMEOUT"); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("LINKDROP_TIMEOUT: %w", err)
			}
			timeout = d
		}
	}
	if timeout == 0 {
		timeout = DefaultRendezvousTimeout
	}
	if timeout < DefaultPollInterval {
		return nil, fmt.Errorf("rendezvous timeout %s is shorter than the poll interval", timeout)
	}

	return &Config{
		ServerURL:         serverURL,
		ShareURL:          shareURL,
		STUNServer:        pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:        pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:          pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:          pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay:        opts.ForceRelay,
		RendezvousTimeout: timeout,
		PollInterval:      DefaultPollInterval,
		ConnectTimeout:    DefaultConnectTimeout,
	}, nil
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// TimeoutTicks is the number of poll ticks that make up the rendezvous timeout.
func (c *Config) TimeoutTicks() int {
	return int(c.RendezvousTimeout / c.PollInterval)
}

// GetRoomLink returns the share link for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return RoomLink(c.ShareURL, roomID)
}

// RoomLink joins a share base URL and a room code as ?room=<code>.
func RoomLink(base, roomID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return strings.TrimRight(base, "?") + "?room=" + url.QueryEscape(roomID)
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ServerOptions configures the reference coordination server.
type ServerOptions struct {
	Addr          string
	ShareURL      string
	DBPath        string
	RoomTTL       time.Duration
	SweepInterval time.Duration
}

// LoadServer fills zero fields of opts from the environment and defaults.
func LoadServer(opts ServerOptions) (*ServerOptions, error) {
	out := opts
	out.Addr = pick(opts.Addr, "LINKDROP_ADDR", ":8080")
	out.ShareURL = pick(opts.ShareURL, "LINKDROP_SHARE_URL", DefaultShareURL)
	if err := validateBaseURL(out.ShareURL); err != nil {
		return nil, fmt.Errorf("share url: %w", err)
	}
	out.DBPath = pick(opts.DBPath, "LINKDROP_DB", "")
	if out.RoomTTL == 0 {
		out.RoomTTL = 10 * time.Minute
	}
	if out.SweepInterval == 0 {
		out.SweepInterval = 30 * time.Second
	}
	return &out, nil
}
