// Package health answers whether the service can take summarization traffic.
package health

import (
	"github.com/cozy-creator/summarize-server/internal/modelstore"
)

type ModelState interface {
	Current() (*modelstore.LoadedModel, bool)
	Status() modelstore.Status
}

type Report struct {
	Ready       bool             `json:"model_loaded"`
	State       modelstore.State `json:"state"`
	Locator     string           `json:"locator,omitempty"`
	Device      string           `json:"device,omitempty"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
}

// Gate is a read-only view of the model store. It never starts a load.
type Gate struct {
	store ModelState
}

func NewGate(store ModelState) *Gate {
	return &Gate{store: store}
}

func (g *Gate) IsReady() bool {
	_, ok := g.store.Current()
	return ok
}

func (g *Gate) Report() Report {
	status := g.store.Status()
	_, ready := g.store.Current()

	return Report{
		Ready:       ready,
		State:       status.State,
		Locator:     status.Locator,
		Device:      status.Device,
		Fingerprint: status.Fingerprint,
		LastError:   status.LastError,
	}
}
