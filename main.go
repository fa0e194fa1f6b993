// Command chatd is a real-time multi-party chat server: encrypted
// WebSocket connections, named channels with option-driven visibility and
// moderation, and a SQLite-backed agent credential store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Takeiteasyeh/chatd/internal/auth"
	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/dispatch"
	"github.com/Takeiteasyeh/chatd/internal/options"
	"github.com/Takeiteasyeh/chatd/internal/transport"
)

func main() {
	confPath := flag.String("conf", confFileName, "path to the configuration file")
	authDBPath := flag.String("auth-db", "chatd-auth.db", "path to the SQLite auth database")
	flag.Parse()

	cfg, err := LoadConfig(*confPath)
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	tlsConfig, err := loadTLSConfig(cfg.SSLCertificate, cfg.SSLPrivateKey)
	if err != nil {
		log.Fatalf("[main] tls: %v", err)
	}

	finder, err := auth.NewSQLiteFinder(*authDBPath, cfg.AuthSalt)
	if err != nil {
		log.Fatalf("[main] auth store: %v", err)
	}
	defer finder.Close()
	if err := finder.EnsureAdmin(options.ClientFromWire(cfg.DefaultAgentOptions)); err != nil {
		log.Fatalf("[main] seed admin: %v", err)
	}

	bans, err := chatcore.LoadBanList(cfg.BanDB)
	if err != nil {
		log.Fatalf("[main] ban list: %v", err)
	}

	if err := os.MkdirAll(defaultLogDir, 0o755); err != nil {
		log.Fatalf("[main] log dir: %v", err)
	}

	reg := chatcore.NewRegistry(bans, defaultLogDir)
	reg.MotdGuests = readMotdFile(cfg.MotdFileGuests)
	reg.MotdClients = readMotdFile(cfg.MotdFileClients)
	reg.MotdAgents = readMotdFile(cfg.MotdFileAgents)

	var lobbies []string
	if cfg.UseGlobalLobby {
		lobbies = append(lobbies, globalLobbyName)
	}
	if cfg.UseStaffLobby {
		lobbies = append(lobbies, staffLobbyName)
	}
	if cfg.UseGuestLobby {
		lobbies = append(lobbies, guestLobbyName)
	}
	reg.CreateDefaultChannels(lobbies, options.ChannelSaveHistory)

	d := dispatch.New(reg, finder, dispatch.Config{
		AllowGuests:         cfg.AllowGuests,
		AllowClients:        cfg.AllowClients,
		DefaultGuestOptions: options.ClientFromWire(cfg.DefaultGuestOptions),
		UseGlobalLobby:      cfg.UseGlobalLobby,
		UseStaffLobby:       cfg.UseStaffLobby,
		UseGuestLobby:       cfg.UseGuestLobby,
		MaxTopicLength:      cfg.MaxTopicLength,
		GlobalLobbyName:     globalLobbyName,
		StaffLobbyName:      staffLobbyName,
		GuestLobbyName:      guestLobbyName,
	})

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.BindPort)
	srv := transport.New(addr, tlsConfig, d)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go d.Run(ctx)
	go srv.RunSweeper(ctx)
	go reg.RunStatsLogger(ctx, statsLogInterval)

	slog.Info("chatd starting", "addr", addr)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("[main] server: %v", err)
	}
	log.Printf("[main] shutdown complete")
}
