package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/Takeiteasyeh/chatd/internal/options"
)

// Config is the on-disk server configuration (spec.md §6).
type Config struct {
	BindAddress string `json:"bind_address"`
	BindPort    int    `json:"bind_port"`

	SSLCertificate string `json:"ssl_certificate"`
	SSLPrivateKey  string `json:"ssl_privatekey"`

	AuthType string `json:"auth_type"`
	AuthSalt string `json:"auth_salt"`

	AllowClients bool `json:"allow_clients"`
	AllowGuests  bool `json:"allow_guests"`

	DefaultGuestOptions uint64 `json:"default_guest_options"`
	// DefaultAgentOptions is the permissions bitfield granted to the
	// auto-seeded initial "admin" account (spec.md §6 "first run"). Every
	// other agent's permissions come from its own stored auth record
	// (spec.md §4.8), not from this config.
	DefaultAgentOptions uint64 `json:"default_agent_options"`

	BanDB string `json:"ban_db"`

	MotdFileGuests  string `json:"motd_file_guests"`
	MotdFileClients string `json:"motd_file_clients"`
	MotdFileAgents  string `json:"motd_file_agents"`

	UseGlobalLobby bool `json:"use_global_lobby"`
	UseStaffLobby  bool `json:"use_staff_lobby"`
	UseGuestLobby  bool `json:"use_guest_lobby"`

	MaxTopicLength int `json:"max_topic_length"`
}

// defaultConfig returns the configuration written the first time chatd
// runs against an empty working directory.
func defaultConfig() Config {
	return Config{
		BindAddress:         defaultBindAddress,
		BindPort:            defaultBindPort,
		SSLCertificate:      "chatd.crt",
		SSLPrivateKey:       "chatd.key",
		AuthType:            "sqlite",
		AuthSalt:            "change-me",
		AllowClients:        false,
		AllowGuests:         true,
		DefaultGuestOptions: uint64(options.ClientJoinChannels),
		DefaultAgentOptions: uint64(options.ClientAdmin | options.ClientJoinChannels | options.ClientPartChannels | options.ClientCreateChannels | options.ClientCanInvite),
		BanDB:               "chatd-bans.json",
		MotdFileGuests:      "",
		MotdFileClients:     "",
		MotdFileAgents:      "",
		UseGlobalLobby:      true,
		UseStaffLobby:       true,
		UseGuestLobby:       true,
		MaxTopicLength:      defaultMaxTopicLength,
	}
}

// LoadConfig reads path, creating it with defaultConfig's values if
// absent (spec.md §6 "creates one if absent").
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := defaultConfig()
		out, merr := json.MarshalIndent(cfg, "", "  ")
		if merr != nil {
			return Config{}, fmt.Errorf("marshal default config: %w", merr)
		}
		if werr := os.WriteFile(path, out, 0o644); werr != nil {
			return Config{}, fmt.Errorf("write default config: %w", werr)
		}
		log.Printf("[config] wrote default %s", path)
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxTopicLength <= 0 {
		cfg.MaxTopicLength = defaultMaxTopicLength
	}
	return cfg, nil
}

// readMotdFile returns the contents of path, or an empty string if path is
// empty or unreadable (spec.md §6 "missing file = empty MOTD").
func readMotdFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] motd file %s: %v (using empty motd)", path, err)
		return ""
	}
	return string(data)
}
