package cli

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// withController opens the database and hands the function a
// controller wired to it.
func withController(fn func(*store.SQLiteStore, *experiment.Controller) error) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctrl := experiment.NewController(s, rand.New(rand.NewSource(time.Now().UnixNano())))
		return fn(s, ctrl)
	})
}

// parseKeyValues parses repeated "key=value" flags into a map.
func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid key=value pair: %q", pair)
		}
		out[key] = value
	}
	return out, nil
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
