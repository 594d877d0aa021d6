//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/bridge"
	"github.com/eliteGoblin/focusd/app_lock/internal/daemon"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/policy"
	"github.com/eliteGoblin/focusd/app_lock/internal/transport"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
	"github.com/eliteGoblin/focusd/app_lock/test/fixtures"
)

// desktops hands each monitoring unit a fresh fake desktop.
type desktops struct {
	mu   sync.Mutex
	last *fixtures.FakeDesktop
}

func (d *desktops) current() *fixtures.FakeDesktop {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *desktops) factory(metrics *infra.Metrics) bridge.UnitFactory {
	config := daemon.UnitConfig{
		Timing: policy.Timing{
			Short:     20 * time.Millisecond,
			Long:      40 * time.Millisecond,
			VeryShort: 5 * time.Millisecond,
			Repeats:   2,
		},
		SpecialApps: []string{"org.videolan.vlc"},
		SelfID:      "applock",
	}
	return func(locked *usecase.LockedSet) (bridge.Runner, error) {
		desk := fixtures.NewFakeDesktop()
		d.mu.Lock()
		d.last = desk
		d.mu.Unlock()
		deps := daemon.UnitDeps{Source: desk, WindowManager: desk, Content: desk, Metrics: metrics}
		return daemon.NewUnit(config, locked, deps, zap.NewNop()), nil
	}
}

var _ = Describe("App lock over the command transport", func() {
	var (
		dataDir string
		store   *infra.EncryptedStore
		metrics *infra.Metrics
		desks   *desktops
		perms   *fixtures.FakePermissions
		br      *bridge.Bridge
		httpSrv *httptest.Server
		client  *transport.Client
		ctx     context.Context
		cancel  context.CancelFunc
	)

	newBridge := func() *bridge.Bridge {
		return bridge.New(bridge.DefaultConfig(), desks.factory(metrics), perms, zap.NewNop(),
			bridge.WithVerifier(usecase.NewKeyVerifier(store)),
			bridge.WithSelectionStore(infra.NewSelectionStore(store, zap.NewNop())))
	}

	call := func(method string, params any) transport.Response {
		resp, err := client.Call(ctx, method, params)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	status := func() transport.StatusResult {
		resp := call(transport.MethodStatus, nil)
		Expect(resp.OK).To(BeTrue())
		var st transport.StatusResult
		Expect(json.Unmarshal(resp.Result, &st)).To(Succeed())
		return st
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)

		dataDir = GinkgoT().TempDir()
		var err error
		store, err = infra.OpenStore(dataDir)
		Expect(err).NotTo(HaveOccurred())

		metrics = infra.NewMetrics()
		desks = &desktops{}
		perms = &fixtures.FakePermissions{}
		br = newBridge()

		server := transport.NewServer(transport.DefaultConfig(), br, zap.NewNop(),
			transport.WithMetrics(metrics.Handler(), metrics))
		httpSrv = httptest.NewServer(server.Handler())

		client, err = transport.Dial(ctx, strings.TrimPrefix(httpSrv.URL, "http://"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		client.Close()
		br.StopMonitoringUnit()
		httpSrv.Close()
		store.Close()
		cancel()
	})

	Describe("locking a selected app", func() {
		BeforeEach(func() {
			Expect(call(transport.MethodSetLockedPackages, []string{"com.bank.app", "org.videolan.vlc"}).OK).To(BeTrue())
			Expect(call(transport.MethodStartOverlayService, nil).OK).To(BeTrue())
			Eventually(desks.current).ShouldNot(BeNil())
		})

		It("covers the locked app after the debounce and uncovers it on leave", func() {
			desk := desks.current()
			desk.Focus("launcher")
			desk.Focus("com.bank.app")

			Eventually(desk.Attached).Should(BeTrue())

			desk.Focus("launcher")
			Eventually(desk.Attached).Should(BeFalse())
			Expect(desk.Adds()).To(Equal(1))
		})

		It("ignores content changes inside the locked app", func() {
			desk := desks.current()
			desk.Focus("com.bank.app")
			Eventually(desk.Attached).Should(BeTrue())

			desk.Repaint("com.bank.app")
			desk.Repaint("com.bank.app")
			Consistently(desk.Attached, 100*time.Millisecond).Should(BeTrue())
			Expect(desk.Adds()).To(Equal(1))
		})

		It("shows over a special app at once and keeps it shown", func() {
			desk := desks.current()
			desk.Focus("launcher")
			desk.Focus("org.videolan.vlc")

			Eventually(desk.Attached, 20*time.Millisecond, time.Millisecond).Should(BeTrue())
			Consistently(desk.Attached, 150*time.Millisecond).Should(BeTrue())
			Expect(desk.Adds()).To(Equal(1))
		})

		It("reports the unit state", func() {
			desk := desks.current()
			desk.Focus("com.bank.app")
			Eventually(desk.Attached).Should(BeTrue())

			Eventually(func() string { return status().Overlay }).Should(Equal("shown"))
			st := status()
			Expect(st.Running).To(BeTrue())
			Expect(st.Foreground).To(Equal("com.bank.app"))
			Expect(st.Selection).To(ConsistOf("com.bank.app", "org.videolan.vlc"))
		})

		It("stops monitoring only with the stored tag", func() {
			Expect(usecase.NewKeyVerifier(store).SetSecret("04:a2:19:7f")).To(Succeed())

			desk := desks.current()
			desk.Focus("com.bank.app")
			Eventually(desk.Attached).Should(BeTrue())

			Expect(call(transport.MethodUnlock, transport.UnlockParams{Tag: "ff:ff"}).OK).To(BeFalse())
			Expect(status().Running).To(BeTrue())

			Expect(call(transport.MethodUnlock, transport.UnlockParams{Tag: "04:a2:19:7f"}).OK).To(BeTrue())
			Expect(status().Running).To(BeFalse())
			Expect(desk.Attached()).To(BeFalse(), "overlay removed when the unit stops")
			Expect(desk.Stopped()).To(BeTrue())
		})

		It("applies a new selection to the running unit", func() {
			desk := desks.current()
			Expect(call(transport.MethodSetLockedPackages, []string{"org.chat"}).OK).To(BeTrue())

			desk.Focus("com.bank.app")
			Consistently(desk.Attached, 100*time.Millisecond).Should(BeFalse())

			desk.Focus("org.chat")
			Eventually(desk.Attached).Should(BeTrue())
		})
	})

	Describe("selection persistence", func() {
		It("restores the saved selection in a new bridge", func() {
			Expect(call(transport.MethodSetLockedPackages, []any{"com.bank.app", 42, nil, " "}).OK).To(BeTrue())

			restored := newBridge()
			Expect(restored.Restore()).To(Succeed())
			Expect(restored.Status(ctx).Selection).To(Equal([]string{"com.bank.app"}))
		})
	})

	Describe("overlay permission", func() {
		It("reports the current grant", func() {
			Expect(call(transport.MethodCheckOverlayPermission, nil).OK).To(BeFalse())
			perms.Grant(true)
			Expect(call(transport.MethodCheckOverlayPermission, nil).OK).To(BeTrue())
		})

		It("resolves a pending request once the permission is granted", func() {
			result := make(chan bool, 1)
			go func() {
				defer GinkgoRecover()
				resp, err := client.Call(ctx, transport.MethodRequestOverlayPermission, nil)
				Expect(err).NotTo(HaveOccurred())
				result <- resp.OK
			}()

			Consistently(result, 50*time.Millisecond).ShouldNot(Receive())
			perms.Grant(true)
			Eventually(br.ResolvePendingPermission).Should(BeTrue())
			Eventually(result).Should(Receive(BeTrue()))
		})
	})

	Describe("metrics", func() {
		It("exposes command and overlay counters", func() {
			Expect(call(transport.MethodSetLockedPackages, []string{"com.bank.app"}).OK).To(BeTrue())
			Expect(call(transport.MethodLock, nil).OK).To(BeTrue())
			Eventually(desks.current).ShouldNot(BeNil())
			desks.current().Focus("com.bank.app")
			Eventually(desks.current().Attached).Should(BeTrue())

			resp, err := http.Get(httpSrv.URL + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())

			Expect(string(body)).To(ContainSubstring(`applock_command_requests_total{method="lock",result="true"} 1`))
			Expect(string(body)).To(ContainSubstring(`applock_overlay_transitions_total{action="show"} 1`))
			Expect(string(body)).To(ContainSubstring("applock_command_connections 1"))
		})
	})
})
