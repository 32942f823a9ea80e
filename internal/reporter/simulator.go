package reporter

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/yahdeeez/teenguard/internal/domain"
)

// catalogApp is one entry in the demo app catalog.
type catalogApp struct {
	name string
	pkg  string
}

// Demo catalogs. The simulator is a stand-in for a real OS usage-statistics
// integration, which is deliberately not implemented.
var (
	simulatedApps = []catalogApp{
		{"Instagram", "com.instagram.android"},
		{"TikTok", "com.zhiliaoapp.musically"},
		{"YouTube", "com.google.android.youtube"},
		{"Snapchat", "com.snapchat.android"},
		{"WhatsApp", "com.whatsapp"},
		{"Chrome", "com.android.chrome"},
	}

	simulatedSites = []domain.WebVisitEvent{
		{URL: "https://www.youtube.com", Title: "YouTube"},
		{URL: "https://www.instagram.com", Title: "Instagram"},
		{URL: "https://www.wikipedia.org", Title: "Wikipedia"},
		{URL: "https://www.reddit.com", Title: "Reddit"},
		{URL: "https://www.google.com/search?q=homework+help", Title: "homework help - Google Search"},
	}
)

// maxSimulatedMinutes bounds a single synthetic usage duration.
const maxSimulatedMinutes = 15

// Simulator emits synthetic app-usage and web-history events on a fixed
// cadence. It self-terminates after a bounded total run time so demo data
// cannot be mistaken for production telemetry.
type Simulator struct {
	teenID    string
	sink      domain.EventSink
	clock     Clock
	rng       *rand.Rand
	logger    *zap.Logger
	interval  time.Duration
	maxRun    time.Duration
	webChance float64
}

// NewSimulator creates a usage/web simulator. The random source is injected
// so scenario tests are reproducible.
func NewSimulator(
	teenID string,
	sink domain.EventSink,
	clock Clock,
	rng *rand.Rand,
	logger *zap.Logger,
	interval, maxRun time.Duration,
	webChance float64,
) *Simulator {
	return &Simulator{
		teenID:    teenID,
		sink:      sink,
		clock:     clock,
		rng:       rng,
		logger:    logger,
		interval:  interval,
		maxRun:    maxRun,
		webChance: webChance,
	}
}

// Run emits one synthetic usage event per tick, plus an occasional web
// visit, until stopped or until the run-time bound elapses.
func (sim *Simulator) Run(ctx context.Context, stop <-chan struct{}) {
	if sim.interval <= 0 {
		sim.logger.Warn("non-positive simulation interval, simulator not started")
		return
	}

	start := sim.clock.Now()
	ticker := sim.clock.NewTicker(sim.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			if sim.clock.Now().Sub(start) >= sim.maxRun {
				sim.logger.Info("simulation run-time bound reached, stopping",
					zap.Duration("max_run", sim.maxRun))
				return
			}
			sim.tick(ctx)
		}
	}
}

// tick emits one usage event and, with fixed probability, one web visit.
func (sim *Simulator) tick(ctx context.Context) {
	app := simulatedApps[sim.rng.Intn(len(simulatedApps))]
	event := domain.UsageEvent{
		TeenID:      sim.teenID,
		AppName:     app.name,
		PackageName: app.pkg,
		UsageTime:   1 + sim.rng.Intn(maxSimulatedMinutes),
		Date:        sim.clock.Now().Format("2006-01-02"),
	}
	sim.sink.SendAppUsage(ctx, event)

	if sim.rng.Float64() < sim.webChance {
		visit := simulatedSites[sim.rng.Intn(len(simulatedSites))]
		visit.TeenID = sim.teenID
		sim.sink.SendWebVisit(ctx, visit)
	}
}
