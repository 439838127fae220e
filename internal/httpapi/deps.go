// Package httpapi is the local control surface: start and watch runs,
// browse the ledger, edit config, store secrets. It binds to localhost
// and carries no auth.
package httpapi

import (
	"sync/atomic"

	"applypilot-engine/internal/config"
	"applypilot-engine/internal/domain"
	"applypilot-engine/internal/events"
	"applypilot-engine/internal/ledger"
	"applypilot-engine/internal/pipeline"
)

type Deps struct {
	Ledger  *ledger.Ledger
	Manager *pipeline.Manager
	Hub     *events.Hub

	// CfgVal stores config.Config; handlers load it per request so a
	// config PUT takes effect without restart.
	CfgVal      *atomic.Value
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// BuildPolicy assembles a run policy for a tenant from the current
	// config plus keychain secrets.
	BuildPolicy func(tenantID string, cfg config.Config) (domain.Policy, error)
}
