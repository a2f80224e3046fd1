package cli_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/cli"
	"github.com/periph-ble/ble-command/pkg/peripheral"
	"github.com/periph-ble/ble-command/pkg/protocol"
	"github.com/periph-ble/ble-command/pkg/stack"
	"github.com/periph-ble/ble-command/pkg/stack/sim"
)

const thermometer = `
device_name: thermometer
mtu: 247
log_level: info
command_timeout: 2s
applications: [0x55, 0x56]
advertising:
  include_name: true
  service_uuid: "1809"
  appearance: thermometer
scan_response:
  manufacturer: acme
start_advertising: true
parameters:
  interval_max: 0x80
`

var _ = Describe("Profile", func() {
	Describe("parsing", func() {
		It("decodes every section", func() {
			profile, err := cli.ParseProfile(strings.NewReader(thermometer))
			Expect(err).NotTo(HaveOccurred())
			Expect(profile.DeviceName).To(Equal("thermometer"))
			Expect(profile.MTU).To(Equal(uint16(247)))
			Expect(profile.CommandTimeout).To(Equal(2 * time.Second))
			Expect(profile.Applications).To(Equal([]uint16{0x55, 0x56}))
			Expect(profile.Advertising.Appearance).To(Equal(advertise.AppearanceThermometer))
			Expect(profile.ScanResponse.Manufacturer).To(Equal("acme"))
			Expect(profile.StartAdvertising).To(BeTrue())
		})

		It("keeps default parameters for omitted fields", func() {
			profile, err := cli.ParseProfile(strings.NewReader(thermometer))
			Expect(err).NotTo(HaveOccurred())
			Expect(profile.Parameters.IntervalMin).To(Equal(uint16(advertise.DefaultIntervalMin)))
			Expect(profile.Parameters.IntervalMax).To(Equal(uint16(0x80)))
			Expect(profile.Parameters.ChannelMap).To(Equal(uint8(advertise.DefaultChannelMap)))
		})

		It("accepts an empty document", func() {
			profile, err := cli.ParseProfile(strings.NewReader(""))
			Expect(err).NotTo(HaveOccurred())
			Expect(profile.Parameters).To(Equal(advertise.DefaultParameters()))
		})

		DescribeTable("rejects invalid profiles",
			func(doc string) {
				_, err := cli.ParseProfile(strings.NewReader(doc))
				Expect(err).To(MatchError(cli.ErrInvalidProfile))
			},
			Entry("unknown field", "advertise_name: true\n"),
			Entry("application id out of range", "applications: [0x8000]\n"),
			Entry("duplicate application", "applications: [1, 1]\n"),
			Entry("unknown log level", "log_level: loud\n"),
			Entry("bad parameters", "start_advertising: true\nparameters:\n  interval_min: 0x100\n  interval_max: 0x40\n"),
		)
	})

	Describe("applying", func() {
		var (
			s   *sim.Stack
			p   *peripheral.Peripheral
			ctx context.Context
		)

		BeforeEach(func() {
			s = sim.New()
			p = peripheral.New(s, peripheral.WithCommandTimeout(time.Second))
			Expect(p.Init(stack.Config{DeviceName: "thermometer"})).To(Succeed())
			DeferCleanup(p.Close)
			ctx = context.Background()
		})

		It("runs the full bring-up sequence", func() {
			profile, err := cli.ParseProfile(strings.NewReader(thermometer))
			Expect(err).NotTo(HaveOccurred())
			Expect(profile.Apply(ctx, p)).To(Succeed())

			var ops []sim.Op
			for _, command := range s.Commands() {
				ops = append(ops, command.Op)
			}
			Expect(ops).To(Equal([]sim.Op{
				sim.OpRegisterApplication,
				sim.OpRegisterApplication,
				sim.OpAdvertisingData,
				sim.OpScanResponseData,
				sim.OpStartAdvertising,
			}))
			Expect(s.Advertising()).To(BeTrue())
			Expect(p.Applications()).To(HaveLen(2))
			Expect(s.Commands()[4].Params.IntervalMax).To(Equal(uint16(0x80)))
		})

		It("stops at the first failure", func() {
			profile, err := cli.ParseProfile(strings.NewReader(thermometer))
			Expect(err).NotTo(HaveOccurred())
			s.FailNext(sim.OpScanResponseData, stack.StatusNoMem)

			err = profile.Apply(ctx, p)
			Expect(err).To(MatchError(protocol.ErrStackFailure))
			Expect(s.Advertising()).To(BeFalse())
			Expect(s.Commands()).To(HaveLen(4))
		})

		It("does nothing for an empty profile", func() {
			profile, err := cli.ParseProfile(strings.NewReader("device_name: idle\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(profile.Apply(ctx, p)).To(Succeed())
			Expect(s.Commands()).To(BeEmpty())
		})
	})
})
