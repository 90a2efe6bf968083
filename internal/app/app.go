// Package app wires configuration, storage, model providers, the answering
// engine, the messaging session, and the HTTP server into one application.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beaconhq/beacon/internal/api"
	"github.com/beaconhq/beacon/internal/channel"
	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/engine"
	"github.com/beaconhq/beacon/internal/knowledge"
	"github.com/beaconhq/beacon/internal/log"
	"github.com/beaconhq/beacon/internal/settings"
)

// App holds the application's long-lived components.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Store    *knowledge.PostgresStore
	Ingestor *knowledge.Ingestor
	Settings *settings.PostgresStore
	Engine   *engine.Engine
	Manager  *channel.Manager
	Server   *api.Server
}

// Close releases everything Setup acquired, in reverse order. Safe to call
// on a partially initialized App.
func (a *App) Close() {
	if a.Manager != nil {
		a.Manager.Stop()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
