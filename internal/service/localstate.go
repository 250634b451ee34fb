package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalState holds the only durable state kept outside the record store: the
// pending-order queue (mirror writes that failed and await retry) and the
// game-to-mirror id mapping used to reverse dashboard orders. Both are plain
// JSON files rewritten atomically via a temp file and rename. The single-run
// lock makes read-modify-write safe without file locking.
type LocalState struct {
	dir string
}

func NewLocalState(dir string) *LocalState {
	return &LocalState{dir: dir}
}

// PendingOrder is one mirror write waiting to be replayed.
type PendingOrder struct {
	GameID           string     `json:"game_id"`
	Title            string     `json:"title"`
	School           string     `json:"school"`
	Sport            string     `json:"sport"`
	GameDate         *time.Time `json:"game_date,omitempty"`
	DeliveryLocation string     `json:"delivery_location,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	SavedAt          time.Time  `json:"saved_at"`
}

func (s *LocalState) pendingPath() string {
	return filepath.Join(s.dir, "pending_dashboard_orders.json")
}

func (s *LocalState) mappingPath() string {
	return filepath.Join(s.dir, "dashboard_order_mapping.json")
}

func (s *LocalState) PendingOrders() ([]PendingOrder, error) {
	var pending []PendingOrder
	if err := readJSON(s.pendingPath(), &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *LocalState) AppendPendingOrder(o PendingOrder) error {
	pending, err := s.PendingOrders()
	if err != nil {
		return err
	}
	pending = append(pending, o)
	return writeJSON(s.pendingPath(), pending)
}

// RemovePendingOrder drops every pending entry for the game. Reports whether
// anything was removed.
func (s *LocalState) RemovePendingOrder(gameID string) (bool, error) {
	pending, err := s.PendingOrders()
	if err != nil {
		return false, err
	}
	kept := pending[:0]
	for _, o := range pending {
		if o.GameID != gameID {
			kept = append(kept, o)
		}
	}
	if len(kept) == len(pending) {
		return false, nil
	}
	return true, writeJSON(s.pendingPath(), kept)
}

// Mapping returns the full game-to-mirror id map.
func (s *LocalState) Mapping() (map[string]string, error) {
	mapping := map[string]string{}
	if err := readJSON(s.mappingPath(), &mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

func (s *LocalState) SaveMapping(gameID, mirrorID string) error {
	mapping, err := s.Mapping()
	if err != nil {
		return err
	}
	mapping[gameID] = mirrorID
	return writeJSON(s.mappingPath(), mapping)
}

func (s *LocalState) MirrorID(gameID string) (string, error) {
	mapping, err := s.Mapping()
	if err != nil {
		return "", err
	}
	return mapping[gameID], nil
}

func (s *LocalState) DeleteMapping(gameID string) error {
	mapping, err := s.Mapping()
	if err != nil {
		return err
	}
	if _, ok := mapping[gameID]; !ok {
		return nil
	}
	delete(mapping, gameID)
	return writeJSON(s.mappingPath(), mapping)
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
