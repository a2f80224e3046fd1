/*
Package proxy implements a REST API for driving a BLE peripheral.

Endpoints:

	POST /api/1/applications              {"app_id": 85}                   register a GATT application
	GET  /api/1/applications                                               list registered applications
	POST /api/1/advertising/data          advertise.Config JSON            install the advertising payload
	POST /api/1/advertising/scan_response advertise.Config JSON            install the scan response payload
	POST /api/1/advertising/start         advertise.Parameters JSON or {}  start advertising
	GET  /api/1/diagnostics                                                router counters

Every reply uses the [Response] envelope. Failures set "error" to one of the codes below and
"error_description" to a human-readable message:

	busy           409  an operation of the same kind is outstanding; retry later
	registered     409  the application id is already registered
	timeout        504  the stack did not complete the command in time; it may still take effect
	stack_failure  502  the stack completed the command with a failure status
	rejected       400  the stack or the proxy rejected the request
	unavailable    503  the stack is not up
	not_found      404  no such endpoint
	internal       500  anything else
*/
package proxy
