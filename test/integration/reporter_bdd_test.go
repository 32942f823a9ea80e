//go:build integration

package integration

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/yahdeeez/teenguard/internal/api"
	"github.com/yahdeeez/teenguard/internal/dashboard"
	"github.com/yahdeeez/teenguard/internal/domain"
	"github.com/yahdeeez/teenguard/internal/infra"
	"github.com/yahdeeez/teenguard/internal/reporter"
	"github.com/yahdeeez/teenguard/internal/server"
)

// End-to-end flow: a real backend over httptest, a real encrypted store,
// consent gate, and HTTP event sink, with only the platform fix and geocode
// endpoints stubbed.
var _ = Describe("Reporter against the backend", func() {
	var (
		backend  *httptest.Server
		geoStub  *httptest.Server
		addrStub *httptest.Server

		tmpDir  string
		store   *infra.EncryptedStore
		gate    *infra.ConsentGate
		client  *api.Client
		session *reporter.Session
		teen    domain.Teen
		ctx     context.Context
		cancel  context.CancelFunc
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		logger := zap.NewNop()

		srvStore, err := server.OpenStore(filepath.Join(tmpDir, "backend.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(srvStore.Close)
		backend = httptest.NewServer(server.NewServer(srvStore, []byte("itest-secret"), logger).Router())
		DeferCleanup(backend.Close)

		geoStub = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"success","lat":51.5,"lon":-0.12}`))
		}))
		DeferCleanup(geoStub.Close)

		addrStub = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"display_name":"Trafalgar Square, London"}`))
		}))
		DeferCleanup(addrStub.Close)

		client = api.NewClient(backend.URL, logger)
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		_, err = client.Register(ctx, "parent@example.com", "hunter22", "Parent")
		Expect(err).NotTo(HaveOccurred())
		created, err := client.CreateTeen(ctx, "Alex", "itest-device")
		Expect(err).NotTo(HaveOccurred())
		teen = *created

		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		Expect(store.SetConfig(domain.ReporterConfig{
			TeenID:            teen.ID,
			DeviceID:          "itest-device",
			MonitoringEnabled: true,
			IntervalMinutes:   5,
		})).To(Succeed())

		gate = infra.NewConsentGate(tmpDir, logger)

		cfg := reporter.DefaultSessionConfig()
		cfg.FixTimeout = 2 * time.Second
		cfg.SimulationInterval = 20 * time.Millisecond
		cfg.SimulationMaxRun = 500 * time.Millisecond
		cfg.SimulationWebChance = 1.0

		session = reporter.NewSession(cfg, store, gate,
			infra.NewIPLocationProviderWithEndpoint(geoStub.URL),
			infra.NewNominatimGeocoderWithEndpoint(addrStub.URL),
			api.NewSink(client, logger),
			nil,
			reporter.RealClock{},
			rand.New(rand.NewSource(GinkgoRandomSeed())),
			logger)
	})

	AfterEach(func() {
		session.Stop()
	})

	Context("when consent has been granted", func() {
		BeforeEach(func() {
			Expect(gate.Grant()).To(Succeed())
		})

		It("enters monitoring and delivers the first sample immediately", func() {
			Expect(session.Start(ctx)).To(Succeed())
			Expect(session.State()).To(Equal(domain.StateMonitoring))

			Eventually(func() ([]domain.Location, error) {
				snap, err := client.Dashboard(ctx, teen.ID)
				if err != nil {
					return nil, err
				}
				return snap.RecentLocations, nil
			}, 3*time.Second, 50*time.Millisecond).ShouldNot(BeEmpty())

			snap, err := client.Dashboard(ctx, teen.ID)
			Expect(err).NotTo(HaveOccurred())
			loc := snap.RecentLocations[0]
			Expect(loc.Latitude).To(BeNumerically("~", 51.5, 0.001))
			Expect(loc.Address).NotTo(BeNil())
			Expect(*loc.Address).To(Equal("Trafalgar Square, London"))
		})

		It("reports simulated usage and web history on the dashboard", func() {
			Expect(session.Start(ctx)).To(Succeed())

			Eventually(func() (int, error) {
				snap, err := client.Dashboard(ctx, teen.ID)
				if err != nil {
					return 0, err
				}
				return snap.ScreenTimeToday, nil
			}, 3*time.Second, 50*time.Millisecond).Should(BeNumerically(">", 0))

			Eventually(func() ([]domain.WebHistory, error) {
				snap, err := client.Dashboard(ctx, teen.ID)
				if err != nil {
					return nil, err
				}
				return snap.RecentWebHistory, nil
			}, 3*time.Second, 50*time.Millisecond).ShouldNot(BeEmpty())
		})

		It("stops sending once the session is stopped", func() {
			Expect(session.Start(ctx)).To(Succeed())
			Eventually(func() (int, error) {
				snap, err := client.Dashboard(ctx, teen.ID)
				if err != nil {
					return 0, err
				}
				return snap.ScreenTimeToday, nil
			}, 3*time.Second, 50*time.Millisecond).Should(BeNumerically(">", 0))

			session.Stop()
			Expect(session.State()).To(Equal(domain.StateIdle))

			snap, err := client.Dashboard(ctx, teen.ID)
			Expect(err).NotTo(HaveOccurred())
			before := snap.ScreenTimeToday

			Consistently(func() (int, error) {
				snap, err := client.Dashboard(ctx, teen.ID)
				if err != nil {
					return 0, err
				}
				return snap.ScreenTimeToday, nil
			}, 300*time.Millisecond, 50*time.Millisecond).Should(Equal(before))
		})
	})

	Context("when consent has not been granted", func() {
		It("stays idle and delivers nothing", func() {
			notices := 0
			session.SetNotice(func(string) { notices++ })

			Expect(session.Start(ctx)).To(Succeed())
			Expect(session.State()).To(Equal(domain.StateIdle))
			Expect(notices).To(Equal(1))

			Consistently(func() ([]domain.Location, error) {
				snap, err := client.Dashboard(ctx, teen.ID)
				if err != nil {
					return nil, err
				}
				return snap.RecentLocations, nil
			}, 300*time.Millisecond, 50*time.Millisecond).Should(BeEmpty())
		})

		It("starts monitoring when consent arrives later", func() {
			Expect(session.Start(ctx)).To(Succeed())
			Expect(session.State()).To(Equal(domain.StateIdle))

			Expect(gate.Grant()).To(Succeed())
			session.SetPermission(ctx, true)
			Expect(session.State()).To(Equal(domain.StateMonitoring))

			Eventually(func() ([]domain.Location, error) {
				snap, err := client.Dashboard(ctx, teen.ID)
				if err != nil {
					return nil, err
				}
				return snap.RecentLocations, nil
			}, 3*time.Second, 50*time.Millisecond).ShouldNot(BeEmpty())
		})
	})

	Context("dashboard polling", func() {
		BeforeEach(func() {
			Expect(gate.Grant()).To(Succeed())
		})

		It("receives fresh snapshots for the selected teen", func() {
			Expect(session.Start(ctx)).To(Succeed())

			snapshots := make(chan *domain.DashboardSnapshot, 16)
			poller := dashboard.NewPoller(client, reporter.RealClock{}, 50*time.Millisecond, zap.NewNop())
			poller.OnSnapshot = func(teenID string, snap *domain.DashboardSnapshot) {
				snapshots <- snap
			}
			DeferCleanup(poller.Stop)

			poller.Select(ctx, teen.ID)

			Eventually(func() bool {
				select {
				case snap := <-snapshots:
					return snap.Teen.ID == teen.ID && len(snap.RecentLocations) > 0
				default:
					return false
				}
			}, 3*time.Second, 50*time.Millisecond).Should(BeTrue())
		})
	})
})
