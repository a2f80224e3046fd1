package proxy_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/periph-ble/ble-command/mocks"
	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/peripheral"
	"github.com/periph-ble/ble-command/pkg/protocol"
	"github.com/periph-ble/ble-command/pkg/proxy"
	"github.com/periph-ble/ble-command/pkg/stack"
	"github.com/periph-ble/ble-command/pkg/stack/sim"
)

var _ = Describe("Proxy", func() {
	var p *proxy.Proxy

	sendRequest := func(method, path string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rr := httptest.NewRecorder()
		p.ServeHTTP(rr, req)
		return rr
	}

	decode := func(rr *httptest.ResponseRecorder) proxy.Response {
		var reply proxy.Response
		Expect(json.Unmarshal(rr.Body.Bytes(), &reply)).To(Succeed())
		return reply
	}

	Context("with a mock peripheral", func() {
		var (
			ctrl   *gomock.Controller
			periph *mocks.ProxyPeripheral
		)

		BeforeEach(func() {
			ctrl = gomock.NewController(GinkgoT())
			periph = mocks.NewProxyPeripheral(ctrl)
			p = proxy.New(periph)
			DeferCleanup(func() {
				ctrl.Finish()
			})
		})

		It("registers applications", func() {
			periph.EXPECT().RegisterApplication(gomock.Any(), peripheral.AppID(0x55)).Return(stack.Interface(3), nil)
			rr := sendRequest(http.MethodPost, proxy.PathApplications, `{"app_id": 85}`)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"interface":3,"app_id":85}}`))
		})

		It("requires an application id", func() {
			rr := sendRequest(http.MethodPost, proxy.PathApplications, `{}`)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rr).Error).To(Equal(proxy.CodeRejected))
		})

		It("rejects malformed JSON", func() {
			rr := sendRequest(http.MethodPost, proxy.PathAdvertising, `{"include_name": `)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects oversized bodies", func() {
			rr := sendRequest(http.MethodPost, proxy.PathAdvertising, fmt.Sprintf(`{"manufacturer": "%s"}`, strings.Repeat("x", 2048)))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("passes advertising configuration through", func() {
			expected := advertise.Config{IncludeName: true, ServiceUUID: "180d", Appearance: advertise.AppearanceHeartRateSensor}
			periph.EXPECT().ConfigureAdvertising(gomock.Any(), expected).Return(nil)
			rr := sendRequest(http.MethodPost, proxy.PathAdvertising, `{"include_name":true,"service_uuid":"180d","appearance":"heart_rate_sensor"}`)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"result":true}}`))
		})

		It("routes scan response configuration separately", func() {
			periph.EXPECT().ConfigureScanResponse(gomock.Any(), advertise.Config{Manufacturer: "acme"}).Return(nil)
			rr := sendRequest(http.MethodPost, proxy.PathScanResponse, `{"manufacturer":"acme"}`)
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		It("fills in default advertising parameters", func() {
			periph.EXPECT().StartAdvertising(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, params *advertise.Parameters) error {
					Expect(params.IntervalMin).To(Equal(uint16(advertise.DefaultIntervalMin)))
					Expect(params.IntervalMax).To(Equal(uint16(0x100)))
					Expect(params.ChannelMap).To(Equal(uint8(advertise.DefaultChannelMap)))
					return nil
				})
			rr := sendRequest(http.MethodPost, proxy.PathStart, `{"interval_max": 256}`)
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		It("bounds each command by the proxy timeout", func() {
			p.Timeout = 50 * time.Millisecond
			periph.EXPECT().StartAdvertising(gomock.Any(), gomock.Any()).DoAndReturn(
				func(ctx context.Context, _ *advertise.Parameters) error {
					deadline, ok := ctx.Deadline()
					Expect(ok).To(BeTrue())
					Expect(time.Until(deadline)).To(BeNumerically("<=", 50*time.Millisecond))
					return nil
				})
			rr := sendRequest(http.MethodPost, proxy.PathStart, "")
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		DescribeTable("maps errors to status codes",
			func(err error, code int, errCode string) {
				periph.EXPECT().StartAdvertising(gomock.Any(), gomock.Any()).Return(err)
				rr := sendRequest(http.MethodPost, proxy.PathStart, "")
				Expect(rr.Code).To(Equal(code))
				reply := decode(rr)
				Expect(reply.Error).To(Equal(errCode))
				Expect(reply.ErrDetails).To(Equal(err.Error()))
			},
			Entry("busy", fmt.Errorf("start advertising: %w", protocol.ErrSlotBusy), http.StatusConflict, proxy.CodeBusy),
			Entry("timeout", fmt.Errorf("start advertising: %w", protocol.ErrTimeout), http.StatusGatewayTimeout, proxy.CodeTimeout),
			Entry("stack failure", &protocol.StackError{Op: "start advertising", Status: stack.StatusFail}, http.StatusBadGateway, proxy.CodeStackFailure),
			Entry("rejected", &protocol.StackError{Op: "start advertising", Err: stack.ErrInvalidArgument}, http.StatusBadRequest, proxy.CodeRejected),
			Entry("closed", protocol.ErrClosed, http.StatusServiceUnavailable, proxy.CodeUnavailable),
			Entry("unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, proxy.CodeInternal),
		)

		It("lists applications ordered by interface", func() {
			periph.EXPECT().Applications().Return(map[stack.Interface]peripheral.Application{
				4: peripheral.AppID(9),
				1: peripheral.AppID(7),
			})
			rr := sendRequest(http.MethodGet, proxy.PathApplications, "")
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"applications":[{"interface":1,"app_id":7},{"interface":4,"app_id":9}]}}`))
		})

		It("returns 404 for unknown paths", func() {
			rr := sendRequest(http.MethodGet, "/api/1/vehicles", "")
			Expect(rr.Code).To(Equal(http.StatusNotFound))
			Expect(decode(rr).Error).To(Equal(proxy.CodeNotFound))
		})

		It("returns 405 for the wrong method", func() {
			rr := sendRequest(http.MethodGet, proxy.PathStart, "")
			Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
			Expect(rr.Header().Get("Allow")).To(Equal(http.MethodPost))
		})
	})

	Context("with a simulated stack", func() {
		var (
			s      *sim.Stack
			periph *peripheral.Peripheral
		)

		BeforeEach(func() {
			s = sim.New()
			periph = peripheral.New(s, peripheral.WithCommandTimeout(100*time.Millisecond))
			Expect(periph.Init(stack.Config{DeviceName: "proxy"})).To(Succeed())
			DeferCleanup(periph.Close)
			p = proxy.New(periph)
		})

		It("brings up an advertiser", func() {
			Expect(sendRequest(http.MethodPost, proxy.PathApplications, `{"app_id": 1}`).Code).To(Equal(http.StatusOK))
			Expect(sendRequest(http.MethodPost, proxy.PathAdvertising, `{"include_name": true}`).Code).To(Equal(http.StatusOK))
			Expect(sendRequest(http.MethodPost, proxy.PathStart, `{}`).Code).To(Equal(http.StatusOK))
			Expect(s.Advertising()).To(BeTrue())
			Expect(s.Payload(sim.OpAdvertisingData)).To(Equal([]byte{0x06, 0x09, 'p', 'r', 'o', 'x', 'y'}))
		})

		It("reports duplicate registrations as conflicts", func() {
			Expect(sendRequest(http.MethodPost, proxy.PathApplications, `{"app_id": 1}`).Code).To(Equal(http.StatusOK))
			rr := sendRequest(http.MethodPost, proxy.PathApplications, `{"app_id": 1}`)
			Expect(rr.Code).To(Equal(http.StatusConflict))
			Expect(decode(rr).Error).To(Equal(proxy.CodeRegistered))
		})

		It("reports stack failures", func() {
			s.FailNext(sim.OpStartAdvertising, stack.StatusBusy)
			rr := sendRequest(http.MethodPost, proxy.PathStart, "")
			Expect(rr.Code).To(Equal(http.StatusBadGateway))
		})

		It("reports dropped completions as timeouts", func() {
			s.DropNext(sim.OpAdvertisingData)
			rr := sendRequest(http.MethodPost, proxy.PathAdvertising, `{}`)
			Expect(rr.Code).To(Equal(http.StatusGatewayTimeout))
		})

		It("rejects invalid advertising parameters", func() {
			rr := sendRequest(http.MethodPost, proxy.PathStart, `{"interval_min": 1}`)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("serves diagnostics", func() {
			Expect(sendRequest(http.MethodPost, proxy.PathApplications, `{"app_id": 2}`).Code).To(Equal(http.StatusOK))
			rr := sendRequest(http.MethodGet, proxy.PathDiagnostics, "")
			Expect(rr.Code).To(Equal(http.StatusOK))
			var reply struct {
				Response struct {
					Events       map[string]float64 `json:"events"`
					Applications map[string]float64 `json:"applications"`
				} `json:"response"`
			}
			Expect(json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&reply)).To(Succeed())
			Expect(reply.Response.Events).To(HaveKeyWithValue("application_registered", 1.0))
			Expect(reply.Response.Applications).To(HaveKeyWithValue("0", 2.0))
		})
	})
})
