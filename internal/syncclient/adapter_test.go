package syncclient

import (
	"context"
	"net/http/httptest"
	"net"
	"testing"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/logging"
	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/aidenletourneau/forcemotion/internal/registry"
	"github.com/aidenletourneau/forcemotion/internal/relay"
	"github.com/aidenletourneau/forcemotion/internal/simulation"
	relayws "github.com/aidenletourneau/forcemotion/internal/websocket"
	. "github.com/onsi/gomega"
)

type testRelay struct {
	url string
	reg *registry.Registry
	hub *relay.Hub
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	r, start := newDownRelay(t)
	start()
	return r
}

// newDownRelay picks the relay's address but refuses connections until start is called
func newDownRelay(t *testing.T) (*testRelay, func()) {
	t.Helper()
	logStore := logging.NewLogStore(100)
	reg := registry.NewRegistry(registry.DefaultSendBuffer)
	hub := relay.NewHub(reg, logStore)

	srv := httptest.NewUnstartedServer(relayws.HandleWebSocket(reg, hub, logStore))
	addr := srv.Listener.Addr().String()
	srv.Listener.Close()

	start := func() {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			t.Fatalf("listen on %s: %v", addr, err)
		}
		srv.Listener = l
		srv.Start()
		t.Cleanup(srv.Close)
	}

	return &testRelay{
		url: "ws://" + addr,
		reg: reg,
		hub: hub,
	}, start
}

func startAdapter(t *testing.T, url string, store *simulation.Store) *Adapter {
	t.Helper()
	return runAdapter(t, newAdapter(t, url, store))
}

func newAdapter(t *testing.T, url string, store *simulation.Store) *Adapter {
	t.Helper()
	return New(store, Options{URL: url, ReconnectMin: 10 * time.Millisecond, ReconnectMax: 50 * time.Millisecond})
}

func runAdapter(t *testing.T, a *Adapter) *Adapter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		a.Close()
	})
	return a
}

func connected(a *Adapter) func() bool {
	return func() bool { return a.Status().Connected }
}

func TestTwoClientsSyncWithoutEcho(t *testing.T) {
	g := NewWithT(t)
	r := newTestRelay(t)

	storeA := simulation.NewStore(10)
	storeB := simulation.NewStore(10)
	a := startAdapter(t, r.url, storeA)
	b := startAdapter(t, r.url, storeB)

	g.Eventually(connected(a)).Should(BeTrue())
	g.Eventually(connected(b)).Should(BeTrue())
	g.Eventually(r.reg.Count).Should(Equal(2))

	storeA.SetForce(25)
	storeA.SetPlaying(true)

	want := models.SimulationConfig{Mass: 1, Force: 25, Friction: 0.1, IsPlaying: true}
	g.Eventually(storeB.Config).Should(Equal(want))

	// B applied the change as remote, so it must never publish it back
	g.Consistently(func() uint64 { return b.Status().Sent }, 200*time.Millisecond).Should(BeZero())
	g.Expect(a.Status().Applied).To(BeZero())
	g.Expect(storeA.Config()).To(Equal(want))
}

func TestLateJoinerResyncs(t *testing.T) {
	g := NewWithT(t)
	r := newTestRelay(t)

	snapshot := models.SimulationConfig{Mass: 4, Force: 30, Friction: 0.5, IsPlaying: true}
	r.hub.Restore(snapshot, time.Now())

	store := simulation.NewStore(10)
	a := startAdapter(t, r.url, store)

	g.Eventually(store.Config).Should(Equal(snapshot))
	g.Eventually(func() uint64 { return a.Status().Applied }).Should(Equal(uint64(1)))
	g.Expect(a.Status().Sent).To(BeZero())
}

func TestReconnectsAfterDrop(t *testing.T) {
	g := NewWithT(t)
	r := newTestRelay(t)

	store := simulation.NewStore(10)
	a := startAdapter(t, r.url, store)
	g.Eventually(r.reg.Count).Should(Equal(1))

	// Kick the client from the relay side
	for _, c := range r.reg.GetAll() {
		r.reg.Unregister(c.ID)
	}

	g.Eventually(func() int { return a.Status().Reconnects }).Should(BeNumerically(">=", 1))
	g.Eventually(connected(a)).Should(BeTrue())
	g.Eventually(r.reg.Count).Should(Equal(1))

	// The new session still publishes local changes
	peer := simulation.NewStore(10)
	startAdapter(t, r.url, peer)
	g.Eventually(r.reg.Count).Should(Equal(2))

	store.SetMass(3)
	g.Eventually(func() float64 { return peer.Config().Mass }).Should(Equal(3.0))
}

func TestDialFailureIsReported(t *testing.T) {
	g := NewWithT(t)

	a := startAdapter(t, "ws://127.0.0.1:1/ws", simulation.NewStore(10))

	g.Eventually(func() string { return a.Status().LastError }).Should(ContainSubstring("dial failed"))
	g.Eventually(func() int { return a.Status().Reconnects }).Should(BeNumerically(">=", 2))
	g.Expect(a.Status().Connected).To(BeFalse())
}

func TestHandleIncomingIgnoresOwnOrigin(t *testing.T) {
	store := simulation.NewStore(10)
	a := New(store, Options{URL: "ws://unused"})

	own, _ := models.NewMessage(models.TypeStateUpdated, a.Origin(), 1, models.SimulationConfig{Mass: 5, Force: 5})
	a.handleIncoming(own)
	if store.Config() != models.DefaultConfig() {
		t.Errorf("own-origin message must not be applied, got %+v", store.Config())
	}

	foreign, _ := models.NewMessage(models.TypeStateUpdated, "someone-else", 1, models.SimulationConfig{Mass: 5, Force: 5})
	a.handleIncoming(foreign)
	if store.Config().Mass != 5 {
		t.Errorf("foreign message should be applied, got %+v", store.Config())
	}

	a.handleIncoming(models.Message{Type: models.TypeStateUpdated, Origin: "x", Payload: []byte(`{"mass":1}`)})
	a.handleIncoming(models.Message{Type: "chat", Origin: "x"})

	st := a.Status()
	if st.Applied != 1 || st.Ignored != 3 {
		t.Errorf("unexpected counters: %+v", st)
	}
}

func TestEditBeforeRunReachesPeers(t *testing.T) {
	g := NewWithT(t)
	r := newTestRelay(t)

	storeB := simulation.NewStore(10)
	b := startAdapter(t, r.url, storeB)
	g.Eventually(connected(b)).Should(BeTrue())

	storeA := simulation.NewStore(10)
	a := newAdapter(t, r.url, storeA)
	storeA.SetForce(25)
	g.Expect(a.Status().Pending).To(BeTrue())
	runAdapter(t, a)

	g.Eventually(func() float64 { return storeB.Config().Force }).Should(Equal(25.0))
	g.Eventually(func() uint64 { return a.Status().Sent }).Should(Equal(uint64(1)))
	g.Expect(a.Status().Pending).To(BeFalse())
	g.Expect(storeA.Config().Force).To(Equal(25.0))
}

func TestPreEditedStoreCountsAsDirty(t *testing.T) {
	store := simulation.NewStore(10)
	store.SetMass(4)

	a := New(store, Options{URL: "ws://unused"})
	defer a.Close()
	if !a.Status().Pending {
		t.Error("store edited before New should be published on first join")
	}

	clean := New(simulation.NewStore(10), Options{URL: "ws://unused"})
	defer clean.Close()
	if clean.Status().Pending {
		t.Error("default store should not be pending")
	}
}

func TestOfflineEditWinsOverRelaySnapshot(t *testing.T) {
	g := NewWithT(t)
	r, start := newDownRelay(t)
	r.hub.Restore(models.SimulationConfig{Mass: 9, Force: 40, Friction: 0.8}, time.Now())

	storeA := simulation.NewStore(10)
	a := startAdapter(t, r.url, storeA)

	// The relay is down: dials fail while the user keeps editing
	g.Eventually(func() int { return a.Status().Reconnects }).Should(BeNumerically(">=", 1))
	storeA.SetForce(33)
	storeA.SetPlaying(true)

	start()

	want := models.SimulationConfig{Mass: 1, Force: 33, Friction: 0.1, IsPlaying: true}
	g.Eventually(func() bool {
		cfg, _, _ := r.hub.Latest()
		return cfg == want
	}).Should(BeTrue())
	g.Consistently(storeA.Config, 200*time.Millisecond).Should(Equal(want))

	// A late peer converges on the offline edit through resync
	storeB := simulation.NewStore(10)
	startAdapter(t, r.url, storeB)
	g.Eventually(storeB.Config).Should(Equal(want))
}

func TestLocalEditsCollapseWhileOffline(t *testing.T) {
	store := simulation.NewStore(10)
	a := New(store, Options{URL: "ws://unused"})
	defer a.Close()

	store.SetMass(2)
	store.SetMass(3)
	store.SetForce(20)

	if !a.takeDirty() {
		t.Fatal("expected pending edit")
	}
	if a.takeDirty() {
		t.Error("edits should collapse into one pending publish")
	}

	store.ApplyRemote(models.SimulationConfig{Mass: 5, Force: 5, Friction: 0.5})
	if a.Status().Pending {
		t.Error("remote changes must not be marked for publishing")
	}
}
