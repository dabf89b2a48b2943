package benchmark

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/model"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

// DiscoveryPoller periodically lists each profile's endpoint model catalog so
// the UI can show reachability and newly pulled models without a manual
// diagnostics round.
type DiscoveryPoller struct {
	store     *Store
	hub       *telemetry.Hub
	interval  time.Duration
	limiter   *rate.Limiter
	newClient func(profile *ModelProfile) EndpointClient
}

// NewDiscoveryPoller builds a poller. The limiter caps catalog requests
// across all profiles so a dense profile list cannot hammer one host.
func NewDiscoveryPoller(store *Store, hub *telemetry.Hub, interval time.Duration, newClient func(*ModelProfile) EndpointClient) *DiscoveryPoller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if newClient == nil {
		newClient = func(profile *ModelProfile) EndpointClient {
			return model.NewClient(profile.EndpointBaseURL, profile.APIKey, 15*time.Second, model.ClientOptions{
				ProfileLabel: profile.Name,
			})
		}
	}
	return &DiscoveryPoller{
		store:     store,
		hub:       hub,
		interval:  interval,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		newClient: newClient,
	}
}

// Run polls until the context is cancelled. An initial sweep happens
// immediately so a fresh process has discovery data before the first tick.
func (p *DiscoveryPoller) Run(ctx context.Context) {
	p.sweep(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// Sweep polls every profile's endpoint once.
func (p *DiscoveryPoller) Sweep(ctx context.Context) {
	p.sweep(ctx)
}

func (p *DiscoveryPoller) sweep(ctx context.Context) {
	profiles, err := p.store.ListProfiles()
	if err != nil {
		return
	}

	// Endpoints are frequently shared between profiles; dedupe by base URL.
	seen := make(map[string][]model.ModelInfo)
	for _, profile := range profiles {
		if ctx.Err() != nil {
			return
		}

		models, cached := seen[profile.EndpointBaseURL]
		if !cached {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
			models, err = p.newClient(profile).ListModels(ctx)
			if err != nil {
				p.recordReachability(profile, false)
				continue
			}
			seen[profile.EndpointBaseURL] = models
		}

		p.recordReachability(profile, true)
		p.publishDiscovered(profile, models)
	}
}

func (p *DiscoveryPoller) recordReachability(profile *ModelProfile, reachable bool) {
	if profile.Diagnostics == nil {
		profile.Diagnostics = &ProfileDiagnostics{}
	}
	now := time.Now()
	profile.Diagnostics.EndpointReachable = &reachable
	profile.Diagnostics.LastSeenAt = &now
	_ = p.store.SaveProfile(profile)
}

func (p *DiscoveryPoller) publishDiscovered(profile *ModelProfile, models []model.ModelInfo) {
	if p.hub == nil {
		return
	}
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	p.hub.Publish(telemetry.Event{
		Type:      telemetry.EventModelDiscovered,
		ProfileID: profile.ID,
		Data: map[string]any{
			"endpoint": profile.EndpointBaseURL,
			"models":   ids,
		},
	})
}
