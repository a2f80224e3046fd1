package stack

import "fmt"

// GAPEvent is the event code passed to the link/advertising-layer callback. The numbering
// follows esp_gap_ble_cb_event_t.
type GAPEvent uint32

const (
	GAPAdvDataSetComplete GAPEvent = iota
	GAPScanRspDataSetComplete
	GAPScanParamSetComplete
	GAPScanResult
	GAPAdvDataRawSetComplete
	GAPScanRspDataRawSetComplete
	GAPAdvStartComplete
	GAPScanStartComplete
	GAPAuthComplete
	GAPKey
	GAPSecurityRequest
	GAPPasskeyNotify
	GAPPasskeyRequest
	GAPOOBRequest
	GAPLocalIR
	GAPLocalER
	GAPNumericComparisonRequest
	GAPAdvStopComplete
	GAPScanStopComplete
	GAPSetStaticRandAddr
	GAPUpdateConnParams
	GAPSetPktLengthComplete
	GAPSetLocalPrivacyComplete
	GAPRemoveBondDevComplete
	GAPClearBondDevComplete
	GAPGetBondDevComplete
	GAPReadRSSIComplete
	GAPUpdateWhitelistComplete
)

var gapNames = []string{
	"ADV_DATA_SET_COMPLETE",
	"SCAN_RSP_DATA_SET_COMPLETE",
	"SCAN_PARAM_SET_COMPLETE",
	"SCAN_RESULT",
	"ADV_DATA_RAW_SET_COMPLETE",
	"SCAN_RSP_DATA_RAW_SET_COMPLETE",
	"ADV_START_COMPLETE",
	"SCAN_START_COMPLETE",
	"AUTH_CMPL",
	"KEY",
	"SEC_REQ",
	"PASSKEY_NOTIF",
	"PASSKEY_REQ",
	"OOB_REQ",
	"LOCAL_IR",
	"LOCAL_ER",
	"NC_REQ",
	"ADV_STOP_COMPLETE",
	"SCAN_STOP_COMPLETE",
	"SET_STATIC_RAND_ADDR",
	"UPDATE_CONN_PARAMS",
	"SET_PKT_LENGTH_COMPLETE",
	"SET_LOCAL_PRIVACY_COMPLETE",
	"REMOVE_BOND_DEV_COMPLETE",
	"CLEAR_BOND_DEV_COMPLETE",
	"GET_BOND_DEV_COMPLETE",
	"READ_RSSI_COMPLETE",
	"UPDATE_WHITELIST_COMPLETE",
}

func (e GAPEvent) String() string {
	if int(e) < len(gapNames) {
		return "GAP_" + gapNames[e]
	}
	return fmt.Sprintf("GAP_EVENT_%d", uint32(e))
}

// GATTSEvent is the event code passed to the service/attribute-layer callback. The numbering
// follows esp_gatts_cb_event_t.
type GATTSEvent uint32

const (
	GATTSRegister GATTSEvent = iota
	GATTSRead
	GATTSWrite
	GATTSExecWrite
	GATTSMTU
	GATTSConfirm
	GATTSUnregister
	GATTSCreate
	GATTSAddIncludedService
	GATTSAddChar
	GATTSAddCharDescr
	GATTSDelete
	GATTSStart
	GATTSStop
	GATTSConnect
	GATTSDisconnect
	GATTSOpen
	GATTSCancelOpen
	GATTSClose
	GATTSListen
	GATTSCongest
	GATTSResponse
	GATTSCreateAttrTable
	GATTSSetAttrValue
	GATTSSendServiceChange
)

var gattsNames = []string{
	"REG",
	"READ",
	"WRITE",
	"EXEC_WRITE",
	"MTU",
	"CONF",
	"UNREG",
	"CREATE",
	"ADD_INCL_SRVC",
	"ADD_CHAR",
	"ADD_CHAR_DESCR",
	"DELETE",
	"START",
	"STOP",
	"CONNECT",
	"DISCONNECT",
	"OPEN",
	"CANCEL_OPEN",
	"CLOSE",
	"LISTEN",
	"CONGEST",
	"RESPONSE",
	"CREAT_ATTR_TAB",
	"SET_ATTR_VAL",
	"SEND_SERVICE_CHANGE",
}

func (e GATTSEvent) String() string {
	if int(e) < len(gattsNames) {
		return "GATTS_" + gattsNames[e]
	}
	return fmt.Sprintf("GATTS_EVENT_%d", uint32(e))
}

// Interface is the handle the stack assigns to a registered GATT server application
// (esp_gatt_if_t).
type Interface uint8

// InterfaceNone is passed with GATT server events that are not bound to an application.
const InterfaceNone Interface = 0xff
