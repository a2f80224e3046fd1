package peripheral_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/periph-ble/ble-command/mocks"
	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/event"
	"github.com/periph-ble/ble-command/pkg/peripheral"
	"github.com/periph-ble/ble-command/pkg/protocol"
	"github.com/periph-ble/ble-command/pkg/stack"
	"github.com/periph-ble/ble-command/pkg/stack/sim"
)

type recordingApp struct {
	id     uint16
	lock   sync.Mutex
	events []event.Event
}

func (a *recordingApp) ApplicationID() uint16 { return a.id }

func (a *recordingApp) HandleEvent(e event.Event) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingApp) received() []event.Event {
	a.lock.Lock()
	defer a.lock.Unlock()
	return append([]event.Event(nil), a.events...)
}

type panickingApp uint16

func (a panickingApp) ApplicationID() uint16  { return uint16(a) }
func (a panickingApp) HandleEvent(event.Event) { panic("boom") }

func nextAnomaly(p *peripheral.Peripheral) peripheral.Anomaly {
	var a peripheral.Anomaly
	EventuallyWithOffset(1, p.Anomalies()).Should(Receive(&a))
	return a
}

var _ = Describe("Peripheral", func() {
	Context("with a mock stack", func() {
		var (
			ctrl      *gomock.Controller
			mockStack *mocks.Stack
			p         *peripheral.Peripheral
			handlers  stack.Handlers
		)

		BeforeEach(func() {
			ctrl = gomock.NewController(GinkgoT())
			mockStack = mocks.NewStack(ctrl)
			p = peripheral.New(mockStack, peripheral.WithCommandTimeout(100*time.Millisecond), peripheral.WithLateCompletionWindow(time.Minute))
			mockStack.EXPECT().Init(stack.Config{DeviceName: "test", MTU: stack.DefaultMTU}, gomock.Any()).DoAndReturn(
				func(cfg stack.Config, h stack.Handlers) error {
					handlers = h
					return nil
				})
			Expect(p.Init(stack.Config{DeviceName: "test"})).To(Succeed())
			DeferCleanup(func() {
				ctrl.Finish()
			})
		})

		It("rejects operations before Init", func() {
			other := peripheral.New(mocks.NewStack(ctrl))
			_, err := other.RegisterApplication(context.Background(), peripheral.AppID(1))
			Expect(err).To(MatchError(protocol.ErrNotInitialized))
			Expect(other.StartAdvertising(context.Background(), nil)).To(MatchError(protocol.ErrNotInitialized))
		})

		It("resolves start advertising on success", func() {
			mockStack.EXPECT().StartAdvertising(advertise.DefaultParameters().Stack()).DoAndReturn(
				func(*stack.AdvertisingParameters) error {
					go handlers.GAP(stack.GAPAdvStartComplete, stack.StatusPayload(stack.StatusSuccess))
					return nil
				})
			Expect(p.StartAdvertising(context.Background(), nil)).To(Succeed())
			Expect(p.Diagnostics().Pending["advertising_start"]).To(Equal(0))
		})

		It("registers an application on the assigned interface", func() {
			app := &recordingApp{id: 2}
			mockStack.EXPECT().RegisterApplication(uint16(2)).DoAndReturn(func(uint16) error {
				go handlers.GATTS(stack.GATTSRegister, 7, stack.RegisterPayload(stack.StatusSuccess, 2))
				return nil
			})
			iface, err := p.RegisterApplication(context.Background(), app)
			Expect(err).NotTo(HaveOccurred())
			Expect(iface).To(Equal(stack.Interface(7)))
			registered, ok := p.Application(7)
			Expect(ok).To(BeTrue())
			Expect(registered).To(BeIdenticalTo(app))
			Expect(p.Applications()).To(HaveLen(1))
		})

		It("refuses a second operation of the same kind without issuing it", func() {
			mockStack.EXPECT().ConfigureAdvertisingData(gomock.Any()).Return(nil).Times(1)
			first := make(chan error, 1)
			go func() {
				first <- p.ConfigureAdvertising(context.Background(), advertise.Config{IncludeName: true})
			}()
			Eventually(func() int { return p.Diagnostics().Pending["advertising_data"] }).Should(Equal(1))

			err := p.ConfigureAdvertising(context.Background(), advertise.Config{})
			Expect(err).To(MatchError(protocol.ErrSlotBusy))
			Expect(protocol.ShouldRetry(err)).To(BeTrue())

			handlers.GAP(stack.GAPAdvDataSetComplete, stack.StatusPayload(stack.StatusSuccess))
			Eventually(first).Should(Receive(BeNil()))
		})

		It("times out and reports the late completion instead of delivering it", func() {
			mockStack.EXPECT().ConfigureAdvertisingData(gomock.Any()).Return(nil)
			err := p.ConfigureScanResponse(context.Background(), advertise.Config{})
			Expect(err).To(MatchError(protocol.ErrTimeout))
			Expect(protocol.MayHaveSucceeded(err)).To(BeTrue())

			// Quarantined until the straggler shows up.
			Expect(p.ConfigureScanResponse(context.Background(), advertise.Config{})).To(MatchError(protocol.ErrSlotBusy))

			handlers.GAP(stack.GAPScanRspDataSetComplete, stack.StatusPayload(stack.StatusSuccess))
			a := nextAnomaly(p)
			Expect(a.Kind).To(Equal(peripheral.AnomalyLate))
			Expect(a.Err).To(MatchError(protocol.ErrUnroutable))
			Expect(a.Event).To(Equal(event.ScanResponseDataSet{Status: stack.StatusSuccess}))
			Expect(p.Diagnostics().Late).To(Equal(uint64(1)))

			mockStack.EXPECT().ConfigureAdvertisingData(gomock.Any()).DoAndReturn(func(*stack.AdvertisingData) error {
				go handlers.GAP(stack.GAPScanRspDataSetComplete, stack.StatusPayload(stack.StatusSuccess))
				return nil
			})
			Expect(p.ConfigureScanResponse(context.Background(), advertise.Config{})).To(Succeed())
		})

		It("reports an unsolicited completion without crashing", func() {
			handlers.GAP(stack.GAPAdvStartComplete, stack.StatusPayload(stack.StatusSuccess))
			a := nextAnomaly(p)
			Expect(a.Kind).To(Equal(peripheral.AnomalyUnroutable))
			Expect(p.Diagnostics().Unroutable).To(Equal(uint64(1)))
		})

		It("releases the slot when the stack rejects a command", func() {
			mockStack.EXPECT().StartAdvertising(gomock.Any()).Return(stack.ErrNotReady)
			err := p.StartAdvertising(context.Background(), nil)
			Expect(err).To(MatchError(protocol.ErrStackRejected))
			Expect(err).To(MatchError(stack.ErrNotReady))
			Expect(p.Diagnostics().Pending["advertising_start"]).To(Equal(0))

			mockStack.EXPECT().StartAdvertising(gomock.Any()).DoAndReturn(func(*stack.AdvertisingParameters) error {
				go handlers.GAP(stack.GAPAdvStartComplete, stack.StatusPayload(stack.StatusSuccess))
				return nil
			})
			Expect(p.StartAdvertising(context.Background(), nil)).To(Succeed())
		})

		It("returns the stack's failure status", func() {
			mockStack.EXPECT().StartAdvertising(gomock.Any()).DoAndReturn(func(*stack.AdvertisingParameters) error {
				go handlers.GAP(stack.GAPAdvStartComplete, stack.StatusPayload(stack.StatusBusy))
				return nil
			})
			err := p.StartAdvertising(context.Background(), nil)
			Expect(err).To(MatchError(protocol.ErrStackFailure))
			var stackErr *protocol.StackError
			Expect(errors.As(err, &stackErr)).To(BeTrue())
			Expect(stackErr.Status).To(Equal(stack.StatusBusy))
			Expect(protocol.ShouldRetry(err)).To(BeTrue())
		})

		It("does not record a failed registration", func() {
			mockStack.EXPECT().RegisterApplication(uint16(3)).DoAndReturn(func(uint16) error {
				go handlers.GATTS(stack.GATTSRegister, stack.InterfaceNone, stack.RegisterPayload(stack.StatusNoMem, 3))
				return nil
			})
			iface, err := p.RegisterApplication(context.Background(), peripheral.AppID(3))
			Expect(err).To(MatchError(protocol.ErrStackFailure))
			Expect(iface).To(Equal(stack.InterfaceNone))
			Expect(p.Applications()).To(BeEmpty())
		})

		It("returns a cancellation error when the caller gives up", func() {
			mockStack.EXPECT().StartAdvertising(gomock.Any()).Return(nil)
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				defer GinkgoRecover()
				Eventually(func() int { return p.Diagnostics().Pending["advertising_start"] }).Should(Equal(1))
				cancel()
			}()
			err := p.StartAdvertising(ctx, nil)
			Expect(err).To(MatchError(context.Canceled))
			var commandErr *protocol.CommandError
			Expect(errors.As(err, &commandErr)).To(BeTrue())
		})

		It("fails outstanding operations on Close", func() {
			q := peripheral.New(mockStack, peripheral.WithCommandTimeout(0))
			mockStack.EXPECT().Init(gomock.Any(), gomock.Any()).Return(nil)
			Expect(q.Init(stack.Config{})).To(Succeed())
			mockStack.EXPECT().StartAdvertising(gomock.Any()).Return(nil)
			mockStack.EXPECT().RegisterApplication(uint16(3)).Return(nil)
			mockStack.EXPECT().Close().Return(nil)

			results := make(chan error, 2)
			go func() {
				results <- q.StartAdvertising(context.Background(), nil)
			}()
			go func() {
				_, err := q.RegisterApplication(context.Background(), peripheral.AppID(3))
				results <- err
			}()
			Eventually(func() int {
				d := q.Diagnostics()
				return d.Pending["advertising_start"] + d.Pending["registrations"]
			}).Should(Equal(2))

			Expect(q.Close()).To(Succeed())
			Eventually(results).Should(Receive(MatchError(protocol.ErrClosed)))
			Eventually(results).Should(Receive(MatchError(protocol.ErrClosed)))
			Expect(q.Diagnostics().Pending).To(HaveEach(0))
		})

		It("rejects invalid advertising configuration without issuing a command", func() {
			err := p.ConfigureAdvertising(context.Background(), advertise.Config{ServiceUUID: "xyz"})
			Expect(err).To(MatchError(protocol.ErrStackRejected))
			Expect(err).To(MatchError(stack.ErrInvalidArgument))
		})
	})

	Context("with the simulated stack", func() {
		var (
			s *sim.Stack
			p *peripheral.Peripheral
		)

		BeforeEach(func() {
			s = sim.New()
			p = peripheral.New(s, peripheral.WithCommandTimeout(time.Second), peripheral.WithLateCompletionWindow(time.Second))
			Expect(p.Init(stack.Config{DeviceName: "sim-device"})).To(Succeed())
			DeferCleanup(p.Close)
		})

		It("performs the bring-up sequence", func() {
			ctx := context.Background()
			iface, err := p.RegisterApplication(ctx, peripheral.AppID(0x55))
			Expect(err).NotTo(HaveOccurred())
			Expect(iface).To(Equal(stack.Interface(0)))
			Expect(p.ConfigureAdvertising(ctx, advertise.Config{IncludeName: true, Flags: advertise.FlagGeneralDiscoverable})).To(Succeed())
			Expect(p.ConfigureScanResponse(ctx, advertise.Config{Appearance: advertise.AppearanceSensor})).To(Succeed())
			Expect(p.StartAdvertising(ctx, nil)).To(Succeed())
			Expect(s.Advertising()).To(BeTrue())

			commands := s.Commands()
			Expect(commands).To(HaveLen(4))
			Expect(commands[0].Op).To(Equal(sim.OpRegisterApplication))
			Expect(commands[1].Op).To(Equal(sim.OpAdvertisingData))
			Expect(commands[2].Op).To(Equal(sim.OpScanResponseData))
			Expect(commands[3].Op).To(Equal(sim.OpStartAdvertising))
			Expect(s.Config().MTU).To(Equal(uint16(stack.DefaultMTU)))
		})

		It("keeps concurrent registrations apart", func() {
			s.SetDelay(5 * time.Millisecond)
			const count = 8
			var wg sync.WaitGroup
			ifaces := make([]stack.Interface, count)
			errs := make([]error, count)
			for i := 0; i < count; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					ifaces[i], errs[i] = p.RegisterApplication(context.Background(), peripheral.AppID(100+i))
				}(i)
			}
			wg.Wait()
			seen := make(map[stack.Interface]bool)
			for i := 0; i < count; i++ {
				Expect(errs[i]).NotTo(HaveOccurred())
				Expect(seen[ifaces[i]]).To(BeFalse())
				seen[ifaces[i]] = true
				app, ok := p.Application(ifaces[i])
				Expect(ok).To(BeTrue())
				Expect(app.ApplicationID()).To(Equal(uint16(100 + i)))
			}
		})

		It("refuses to register the same application twice", func() {
			_, err := p.RegisterApplication(context.Background(), peripheral.AppID(9))
			Expect(err).NotTo(HaveOccurred())
			_, err = p.RegisterApplication(context.Background(), peripheral.AppID(9))
			Expect(err).To(MatchError(protocol.ErrAlreadyRegistered))
			Expect(s.Commands()).To(HaveLen(1))
		})

		It("resolves every waiter under injected faults", func() {
			s.FailNext(sim.OpAdvertisingData, stack.StatusParamInvalid)
			err := p.ConfigureAdvertising(context.Background(), advertise.Config{})
			Expect(err).To(MatchError(protocol.ErrStackFailure))
			Expect(protocol.ShouldRetry(err)).To(BeFalse())

			s.FailNext(sim.OpRegisterApplication, stack.StatusBusy)
			_, err = p.RegisterApplication(context.Background(), peripheral.AppID(1))
			Expect(protocol.ShouldRetry(err)).To(BeTrue())
			_, err = p.RegisterApplication(context.Background(), peripheral.AppID(1))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.ConfigureAdvertising(context.Background(), advertise.Config{})).To(Succeed())
			Expect(p.Diagnostics().Pending).To(HaveEach(0))
		})

		It("times out when the stack drops a completion", func() {
			fast := sim.New()
			q := peripheral.New(fast, peripheral.WithCommandTimeout(30*time.Millisecond), peripheral.WithLateCompletionWindow(20*time.Millisecond))
			Expect(q.Init(stack.Config{})).To(Succeed())
			DeferCleanup(q.Close)

			fast.DropNext(sim.OpStartAdvertising)
			Expect(q.StartAdvertising(context.Background(), nil)).To(MatchError(protocol.ErrTimeout))
			// The quarantine lapses without a completion and the slot reopens.
			Eventually(func() error {
				return q.StartAdvertising(context.Background(), nil)
			}).Should(Succeed())
		})

		It("keeps a completion that outlives the timeout away from the next caller", func() {
			slow := sim.New()
			q := peripheral.New(slow, peripheral.WithCommandTimeout(50*time.Millisecond), peripheral.WithLateCompletionWindow(time.Second))
			Expect(q.Init(stack.Config{})).To(Succeed())
			DeferCleanup(q.Close)

			slow.SetDelay(200 * time.Millisecond)
			Expect(q.StartAdvertising(context.Background(), nil)).To(MatchError(protocol.ErrTimeout))
			Expect(q.StartAdvertising(context.Background(), nil)).To(MatchError(protocol.ErrSlotBusy))

			a := nextAnomaly(q)
			Expect(a.Kind).To(Equal(peripheral.AnomalyLate))
			Expect(a.Event).To(Equal(event.AdvertisingStarted{Status: stack.StatusSuccess}))
			Expect(q.Diagnostics().Late).To(Equal(uint64(1)))
			Expect(slow.Commands()).To(HaveLen(1))

			slow.SetDelay(0)
			Expect(q.StartAdvertising(context.Background(), nil)).To(Succeed())
		})

		It("quarantines even when given a zero late completion window", func() {
			slow := sim.New()
			q := peripheral.New(slow, peripheral.WithCommandTimeout(50*time.Millisecond), peripheral.WithLateCompletionWindow(0))
			Expect(q.Init(stack.Config{})).To(Succeed())
			DeferCleanup(q.Close)

			slow.DropNext(sim.OpStartAdvertising)
			Expect(q.StartAdvertising(context.Background(), nil)).To(MatchError(protocol.ErrTimeout))
			Expect(q.StartAdvertising(context.Background(), nil)).To(MatchError(protocol.ErrSlotBusy))
		})

		It("rejects out-of-range parameters immediately", func() {
			params := advertise.DefaultParameters()
			params.IntervalMin = 0x10
			err := p.StartAdvertising(context.Background(), params)
			Expect(err).To(MatchError(protocol.ErrStackRejected))
			Expect(s.Commands()).To(BeEmpty())
		})

		It("forwards unhandled events to the owning application", func() {
			app := &recordingApp{id: 4}
			iface, err := p.RegisterApplication(context.Background(), app)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Inject(func(h stack.Handlers) {
				h.GATTS(stack.GATTSConnect, iface, make([]byte, 16))
				h.GATTS(stack.GATTSConnect, iface+1, nil)
			})).To(Succeed())
			Eventually(app.received).Should(ConsistOf(
				event.Unhandled{Layer: event.LayerGATTS, Code: uint32(stack.GATTSConnect), Interface: iface},
			))
			Eventually(func() uint64 { return p.Diagnostics().Unhandled }).Should(Equal(uint64(2)))
		})

		It("survives a panicking application handler", func() {
			iface, err := p.RegisterApplication(context.Background(), panickingApp(5))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Inject(func(h stack.Handlers) {
				h.GATTS(stack.GATTSWrite, iface, nil)
			})).To(Succeed())
			a := nextAnomaly(p)
			Expect(a.Kind).To(Equal(peripheral.AnomalyHandlerPanic))
			Expect(p.StartAdvertising(context.Background(), nil)).To(Succeed())
		})

		It("treats truncated payloads as unhandled", func() {
			Expect(s.Inject(func(h stack.Handlers) {
				h.GAP(stack.GAPAdvStartComplete, []byte{0})
			})).To(Succeed())
			Eventually(func() uint64 { return p.Diagnostics().Unhandled }).Should(Equal(uint64(1)))
			Expect(p.Diagnostics().Unroutable).To(BeZero())
		})

		It("counts anomalies that overflow the buffer", func() {
			q := peripheral.New(sim.New(), peripheral.WithAnomalyBuffer(1))
			Expect(q.Init(stack.Config{})).To(Succeed())
			DeferCleanup(q.Close)
			for i := 0; i < 3; i++ {
				q.HandleGAPEvent(stack.GAPAdvDataSetComplete, stack.StatusPayload(stack.StatusSuccess))
			}
			d := q.Diagnostics()
			Expect(d.Unroutable).To(Equal(uint64(3)))
			Expect(d.DroppedAnomalies).To(Equal(uint64(2)))
		})

		It("renders diagnostics as JSON", func() {
			_, err := p.RegisterApplication(context.Background(), peripheral.AppID(0x55))
			Expect(err).NotTo(HaveOccurred())
			d := p.Diagnostics()
			encoded, err := d.JSON()
			Expect(err).NotTo(HaveOccurred())
			var decoded map[string]interface{}
			Expect(json.Unmarshal(encoded, &decoded)).To(Succeed())
			Expect(decoded).To(HaveKeyWithValue("applications", HaveKeyWithValue("0", BeNumerically("==", 0x55))))
			Expect(decoded).To(HaveKeyWithValue("events", HaveKeyWithValue("application_registered", BeNumerically("==", 1))))
			Expect(decoded).To(HaveKeyWithValue("unroutable", BeNumerically("==", 0)))
		})

		It("fails operations after Close", func() {
			Expect(p.Close()).To(Succeed())
			Expect(p.StartAdvertising(context.Background(), nil)).To(MatchError(protocol.ErrClosed))
		})
	})
})
