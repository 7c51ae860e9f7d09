package editor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/fieldreport/internal/ai"
	"github.com/DukeRupert/fieldreport/internal/completion"
	"github.com/DukeRupert/fieldreport/internal/export"
	"github.com/DukeRupert/fieldreport/internal/ingest"
	"github.com/DukeRupert/fieldreport/internal/storage"
	"github.com/DukeRupert/fieldreport/internal/store"
)

// Config holds the scheduling settings for open sessions.
type Config struct {
	// AutosaveInterval is how often each open session checks for unsaved
	// changes.
	// Default: 30 seconds
	AutosaveInterval time.Duration

	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// attachments before the final save.
	// Default: 30 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() Config {
	return Config{
		AutosaveInterval: 30 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.AutosaveInterval <= 0 {
		return fmt.Errorf("autosave interval must be positive, got %v", c.AutosaveInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}

// Deps are the collaborators shared by every session. Remote, Publisher and
// AI are optional: without them attachment deletes stay local, drafts are
// not mirrored, and enrichment reports EENRICH.
type Deps struct {
	Store     store.Store
	Pipeline  *ingest.Pipeline
	Committer *completion.Committer
	Remote    storage.Storage
	Publisher *export.Publisher
	AI        ai.Provider
	Logger    *slog.Logger
	Now       func() time.Time
}

func (d *Deps) validate() error {
	if d.Store == nil {
		return fmt.Errorf("editor requires a document store")
	}
	if d.Pipeline == nil {
		return fmt.Errorf("editor requires an ingestion pipeline")
	}
	if d.Committer == nil {
		return fmt.Errorf("editor requires a completion committer")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return nil
}
