package advertise

import (
	"fmt"
	"strconv"
	"strings"
)

// Appearance is a GAP appearance category. The advertised value is the category shifted left by
// six bits, leaving the sub-category zero.
type Appearance uint16

const (
	AppearanceUnknown Appearance = iota
	AppearancePhone
	AppearanceComputer
	AppearanceWatch
	AppearanceClock
	AppearanceDisplay
	AppearanceRemoteControl
	AppearanceEyeGlasses
	AppearanceTag
	AppearanceKeyring
	AppearanceMediaPlayer
	AppearanceBarcodeScanner
	AppearanceThermometer
	AppearanceHeartRateSensor
	AppearanceBloodPressure
	AppearanceHumanInterfaceDevice
	AppearanceGlucoseMeter
	AppearanceRunningWalkingSensor
	AppearanceCycling
	AppearanceControlDevice
	AppearanceNetworkDevice
	AppearanceSensor
	AppearanceLightFixtures
	AppearanceFan
	AppearanceHVAC
	AppearanceAirConditioning
	AppearanceHumidifier
	AppearanceHeating
	AppearanceAccessControl
	AppearanceMotorizedDevice
	AppearancePowerDevice
	AppearanceLightSource
	AppearanceWindowCovering
	AppearanceAudioSink
	AppearanceAudioSource
	AppearanceMotorizedVehicle
	AppearanceDomesticAppliance
	AppearanceWearableAudioDevice
	AppearanceAircraft
	AppearanceAVEquipment
	AppearanceDisplayEquipment
	AppearanceHearingAid
	AppearanceGaming
	AppearanceSignage
)

const (
	AppearancePulseOximeter Appearance = iota + 0x31
	AppearanceWeightScale
	AppearancePersonalMobilityDevice
	AppearanceContinuousGlucoseMonitor
	AppearanceInsulinPump
	AppearanceMedicationDelivery
)

const AppearanceOutdoorSportsActivity Appearance = 0x51

var appearanceNames = map[Appearance]string{
	AppearanceUnknown:                  "unknown",
	AppearancePhone:                    "phone",
	AppearanceComputer:                 "computer",
	AppearanceWatch:                    "watch",
	AppearanceClock:                    "clock",
	AppearanceDisplay:                  "display",
	AppearanceRemoteControl:            "remote_control",
	AppearanceEyeGlasses:               "eye_glasses",
	AppearanceTag:                      "tag",
	AppearanceKeyring:                  "keyring",
	AppearanceMediaPlayer:              "media_player",
	AppearanceBarcodeScanner:           "barcode_scanner",
	AppearanceThermometer:              "thermometer",
	AppearanceHeartRateSensor:          "heart_rate_sensor",
	AppearanceBloodPressure:            "blood_pressure",
	AppearanceHumanInterfaceDevice:     "human_interface_device",
	AppearanceGlucoseMeter:             "glucose_meter",
	AppearanceRunningWalkingSensor:     "running_walking_sensor",
	AppearanceCycling:                  "cycling",
	AppearanceControlDevice:            "control_device",
	AppearanceNetworkDevice:            "network_device",
	AppearanceSensor:                   "sensor",
	AppearanceLightFixtures:            "light_fixtures",
	AppearanceFan:                      "fan",
	AppearanceHVAC:                     "hvac",
	AppearanceAirConditioning:          "air_conditioning",
	AppearanceHumidifier:               "humidifier",
	AppearanceHeating:                  "heating",
	AppearanceAccessControl:            "access_control",
	AppearanceMotorizedDevice:          "motorized_device",
	AppearancePowerDevice:              "power_device",
	AppearanceLightSource:              "light_source",
	AppearanceWindowCovering:           "window_covering",
	AppearanceAudioSink:                "audio_sink",
	AppearanceAudioSource:              "audio_source",
	AppearanceMotorizedVehicle:         "motorized_vehicle",
	AppearanceDomesticAppliance:        "domestic_appliance",
	AppearanceWearableAudioDevice:      "wearable_audio_device",
	AppearanceAircraft:                 "aircraft",
	AppearanceAVEquipment:              "av_equipment",
	AppearanceDisplayEquipment:         "display_equipment",
	AppearanceHearingAid:               "hearing_aid",
	AppearanceGaming:                   "gaming",
	AppearanceSignage:                  "signage",
	AppearancePulseOximeter:            "pulse_oximeter",
	AppearanceWeightScale:              "weight_scale",
	AppearancePersonalMobilityDevice:   "personal_mobility_device",
	AppearanceContinuousGlucoseMonitor: "continuous_glucose_monitor",
	AppearanceInsulinPump:              "insulin_pump",
	AppearanceMedicationDelivery:       "medication_delivery",
	AppearanceOutdoorSportsActivity:    "outdoor_sports_activity",
}

// Value returns the 16-bit appearance value carried in advertising data.
func (a Appearance) Value() uint16 {
	return uint16(a) << 6
}

func (a Appearance) String() string {
	if name, ok := appearanceNames[a]; ok {
		return name
	}
	return fmt.Sprintf("appearance_%d", uint16(a))
}

func (a Appearance) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts a category name such as "heart_rate_sensor" or a numeric category.
func (a *Appearance) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for value, n := range appearanceNames {
		if n == name {
			*a = value
			return nil
		}
	}
	n, err := strconv.ParseUint(name, 0, 10)
	if err != nil {
		return fmt.Errorf("unrecognized appearance '%s'", text)
	}
	*a = Appearance(n)
	return nil
}
