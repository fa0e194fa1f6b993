package main

import "time"

// Operational limits — named constants for values used by startup wiring.
const (
	// statsLogInterval is how often the registry's counter summary is
	// logged (internal/chatcore.RunStatsLogger).
	statsLogInterval = 60 * time.Second

	// confFileName is the configuration file read from the working
	// directory (spec.md §6); a default is written if absent.
	confFileName = "chatd.conf"

	// defaultBindAddress/defaultBindPort seed a freshly created config.
	defaultBindAddress = "0.0.0.0"
	defaultBindPort    = 6697

	// defaultMaxTopicLength bounds a channel topic when the config omits
	// max_topic_length.
	defaultMaxTopicLength = 300

	// adminPasswordDigits is the length of the random numeric password
	// generated for the seeded admin account on first run.
	adminPasswordDigits = 7

	// defaultLogDir is where per-channel activity logs are written.
	defaultLogDir = "logs"

	// globalLobbyName/staffLobbyName/guestLobbyName are the three
	// well-known lobby names create_default_channels may create (spec.md
	// §4.5, §8 scenario 1).
	globalLobbyName = "Global Lobby"
	staffLobbyName  = "Staff Lobby"
	guestLobbyName  = "Guest Lobby"
)
