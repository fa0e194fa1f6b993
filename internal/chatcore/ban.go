package chatcore

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"
)

// Ban is one entry in the ban list: an IP address barred from connecting,
// optionally with an expiry (spec.md §4.4).
type Ban struct {
	IP      string     `json:"ip"`
	Reason  string     `json:"reason"`
	AddedBy string     `json:"added_by"`
	AddedOn time.Time  `json:"added_on"`
	Expires *time.Time `json:"expires,omitempty"`
}

// Expired reports whether the ban's expiry, if any, has passed as of now.
func (b Ban) Expired(now time.Time) bool {
	return b.Expires != nil && now.After(*b.Expires)
}

// BanList is the server's persisted collection of IP bans, stored as a
// single JSON file (spec.md §6 ban_db). An empty or absent file is valid
// and means no bans.
type BanList struct {
	mu   sync.RWMutex
	path string
	bans map[string]Ban
}

// LoadBanList reads path into a BanList. A missing file is created empty
// and an absent or malformed file both yield an empty list rather than an
// error (spec.md §4.4 load semantics).
func LoadBanList(path string) (*BanList, error) {
	bl := &BanList{path: path, bans: make(map[string]Ban)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, err
		}
		return bl, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return bl, nil
	}
	var list []Ban
	if err := json.Unmarshal(data, &list); err != nil {
		log.Printf("[banlist] %s is malformed, treating as empty: %v", path, err)
		return bl, nil
	}
	for _, b := range list {
		bl.bans[b.IP] = b
	}
	return bl, nil
}

// Exists reports whether ip is currently banned (and not expired). An
// expired entry is treated as not-banned but is not evicted here; callers
// that want eviction should call Prune.
func (bl *BanList) Exists(ip string) bool {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	b, ok := bl.bans[ip]
	if !ok {
		return false
	}
	return !b.Expired(time.Now())
}

// Lookup returns the ban entry for ip, if any.
func (bl *BanList) Lookup(ip string) (Ban, bool) {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	b, ok := bl.bans[ip]
	return b, ok
}

// Add inserts or replaces the ban entry for b.IP and persists the list.
func (bl *BanList) Add(b Ban) error {
	bl.mu.Lock()
	bl.bans[b.IP] = b
	bl.mu.Unlock()
	return bl.save()
}

// Remove deletes the ban entry for ip, if present, and persists the list.
func (bl *BanList) Remove(ip string) error {
	bl.mu.Lock()
	_, ok := bl.bans[ip]
	if ok {
		delete(bl.bans, ip)
	}
	bl.mu.Unlock()
	if !ok {
		return nil
	}
	return bl.save()
}

// Prune removes every expired entry and persists the list if it changed.
func (bl *BanList) Prune() error {
	now := time.Now()
	bl.mu.Lock()
	changed := false
	for ip, b := range bl.bans {
		if b.Expired(now) {
			delete(bl.bans, ip)
			changed = true
		}
	}
	bl.mu.Unlock()
	if !changed {
		return nil
	}
	return bl.save()
}

// save writes the current list to disk. Called with bl.mu already released
// by the caller (Add/Remove/Prune take the lock only for the mutation, not
// the write). An empty list is never written: a fresh install keeps the
// empty ban_db file LoadBanList created, and removing the last ban leaves
// the previous contents on disk.
func (bl *BanList) save() error {
	bl.mu.RLock()
	list := make([]Ban, 0, len(bl.bans))
	for _, b := range bl.bans {
		list = append(list, b)
	}
	bl.mu.RUnlock()

	if len(list) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(bl.path, data, 0o644); err != nil {
		log.Printf("[banlist] write %s: %v", bl.path, err)
		return err
	}
	return nil
}
