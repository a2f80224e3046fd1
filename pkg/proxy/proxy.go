package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/peripheral"
	"github.com/periph-ble/ble-command/pkg/protocol"
	"github.com/periph-ble/ble-command/pkg/stack"
)

const (
	DefaultTimeout      = 10 * time.Second
	maxRequestBodyBytes = 1024
)

// Paths served by the proxy.
const (
	PathApplications = "/api/1/applications"
	PathAdvertising  = "/api/1/advertising/data"
	PathScanResponse = "/api/1/advertising/scan_response"
	PathStart        = "/api/1/advertising/start"
	PathDiagnostics  = "/api/1/diagnostics"
)

// Error codes placed in Response.Error.
const (
	CodeBusy         = "busy"
	CodeRegistered   = "registered"
	CodeTimeout      = "timeout"
	CodeStackFailure = "stack_failure"
	CodeRejected     = "rejected"
	CodeUnavailable  = "unavailable"
	CodeNotFound     = "not_found"
	CodeInternal     = "internal"
)

//go:generate mockgen -source proxy.go -destination ../../mocks/proxy.go -package mocks -mock_names Peripheral=ProxyPeripheral

// Peripheral is the subset of *peripheral.Peripheral used by the proxy.
type Peripheral interface {
	RegisterApplication(ctx context.Context, app peripheral.Application) (stack.Interface, error)
	ConfigureAdvertising(ctx context.Context, cfg advertise.Config) error
	ConfigureScanResponse(ctx context.Context, cfg advertise.Config) error
	StartAdvertising(ctx context.Context, params *advertise.Parameters) error
	Applications() map[stack.Interface]peripheral.Application
	Diagnostics() peripheral.Diagnostics
}

// Proxy exposes an HTTP API for driving a peripheral.
type Proxy struct {
	Timeout time.Duration

	periph Peripheral
}

// New creates an http proxy for p, which must already be initialized.
func New(p Peripheral) *Proxy {
	return &Proxy{
		Timeout: DefaultTimeout,
		periph:  p,
	}
}

// Response contains a server's response to a client request.
type Response struct {
	Response   interface{} `json:"response"`
	Error      string      `json:"error,omitempty"`
	ErrDetails string      `json:"error_description,omitempty"`
}

// RegisterRequest is the body of POST /api/1/applications.
type RegisterRequest struct {
	AppID *uint16 `json:"app_id"`
}

// ApplicationInfo describes a registered application.
type ApplicationInfo struct {
	Interface stack.Interface `json:"interface"`
	AppID     uint16          `json:"app_id"`
}

type result struct {
	Result bool `json:"result"`
}

// ErrorCode classifies err into one of the Code constants and the matching HTTP status.
func ErrorCode(err error) (string, int) {
	switch {
	case errors.Is(err, protocol.ErrSlotBusy):
		return CodeBusy, http.StatusConflict
	case errors.Is(err, protocol.ErrAlreadyRegistered):
		return CodeRegistered, http.StatusConflict
	case errors.Is(err, protocol.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout, http.StatusGatewayTimeout
	case errors.Is(err, protocol.ErrStackFailure):
		return CodeStackFailure, http.StatusBadGateway
	case errors.Is(err, protocol.ErrStackRejected), errors.Is(err, stack.ErrInvalidArgument):
		return CodeRejected, http.StatusBadRequest
	case errors.Is(err, protocol.ErrNotInitialized), errors.Is(err, protocol.ErrClosed), errors.Is(err, context.Canceled):
		return CodeUnavailable, http.StatusServiceUnavailable
	}
	return CodeInternal, http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, reply *Response) {
	jsonBytes, err := json.Marshal(reply)
	if err != nil {
		log.Error("Error serializing reply %+v: %s", reply, err)
		code = http.StatusInternalServerError
		jsonBytes = []byte("{\"error\": \"internal\"}")
	}
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(code)
	jsonBytes = append(jsonBytes, '\n')
	w.Write(jsonBytes)
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	reply := Response{}
	if err == nil {
		reply.Error = http.StatusText(code)
	} else {
		reply.Error, code = ErrorCode(err)
		reply.ErrDetails = err.Error()
	}
	log.Error("Returning error %s: %s", http.StatusText(code), reply.ErrDetails)
	writeJSON(w, code, &reply)
}

func writeJSONErrorCode(w http.ResponseWriter, code int, errCode string, err error) {
	log.Error("Returning error %s: %s", http.StatusText(code), err)
	writeJSON(w, code, &Response{Error: errCode, ErrDetails: err.Error()})
}

// decodeBody unmarshals the request body into v. An empty body leaves v untouched.
func decodeBody(req *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBodyBytes+1))
	if err != nil {
		return fmt.Errorf("could not read request body: %s", err)
	}
	if len(body) > maxRequestBodyBytes {
		return fmt.Errorf("request body exceeds %d bytes", maxRequestBodyBytes)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("could not parse JSON body: %s", err)
	}
	return nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Info("Received %s request for %s", req.Method, req.URL.Path)

	var allowed string
	switch req.URL.Path {
	case PathApplications:
		switch req.Method {
		case http.MethodPost:
			p.handleRegister(w, req)
			return
		case http.MethodGet:
			p.handleApplications(w)
			return
		}
		allowed = "GET, POST"
	case PathAdvertising, PathScanResponse:
		if req.Method == http.MethodPost {
			p.handleConfigure(w, req, req.URL.Path == PathScanResponse)
			return
		}
		allowed = http.MethodPost
	case PathStart:
		if req.Method == http.MethodPost {
			p.handleStart(w, req)
			return
		}
		allowed = http.MethodPost
	case PathDiagnostics:
		if req.Method == http.MethodGet {
			p.handleDiagnostics(w)
			return
		}
		allowed = http.MethodGet
	default:
		writeJSONErrorCode(w, http.StatusNotFound, CodeNotFound, fmt.Errorf("no such endpoint %s", req.URL.Path))
		return
	}
	w.Header().Set("Allow", allowed)
	writeJSONError(w, http.StatusMethodNotAllowed, nil)
}

func (p *Proxy) context(req *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(req.Context(), p.Timeout)
}

func (p *Proxy) handleRegister(w http.ResponseWriter, req *http.Request) {
	var params RegisterRequest
	if err := decodeBody(req, &params); err != nil {
		writeJSONErrorCode(w, http.StatusBadRequest, CodeRejected, err)
		return
	}
	if params.AppID == nil {
		writeJSONErrorCode(w, http.StatusBadRequest, CodeRejected, errors.New("missing app_id param"))
		return
	}

	ctx, cancel := p.context(req)
	defer cancel()
	iface, err := p.periph.RegisterApplication(ctx, peripheral.AppID(*params.AppID))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, &Response{Response: &ApplicationInfo{Interface: iface, AppID: *params.AppID}})
}

func (p *Proxy) handleApplications(w http.ResponseWriter) {
	apps := p.periph.Applications()
	infos := make([]ApplicationInfo, 0, len(apps))
	for iface, app := range apps {
		infos = append(infos, ApplicationInfo{Interface: iface, AppID: app.ApplicationID()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Interface < infos[j].Interface })
	writeJSON(w, http.StatusOK, &Response{Response: map[string]interface{}{"applications": infos}})
}

func (p *Proxy) handleConfigure(w http.ResponseWriter, req *http.Request, scanResponse bool) {
	var cfg advertise.Config
	if err := decodeBody(req, &cfg); err != nil {
		writeJSONErrorCode(w, http.StatusBadRequest, CodeRejected, err)
		return
	}

	ctx, cancel := p.context(req)
	defer cancel()
	var err error
	if scanResponse {
		err = p.periph.ConfigureScanResponse(ctx, cfg)
	} else {
		err = p.periph.ConfigureAdvertising(ctx, cfg)
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, &Response{Response: &result{Result: true}})
}

func (p *Proxy) handleStart(w http.ResponseWriter, req *http.Request) {
	params := advertise.DefaultParameters()
	if err := decodeBody(req, params); err != nil {
		writeJSONErrorCode(w, http.StatusBadRequest, CodeRejected, err)
		return
	}

	ctx, cancel := p.context(req)
	defer cancel()
	if err := p.periph.StartAdvertising(ctx, params); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, &Response{Response: &result{Result: true}})
}

func (p *Proxy) handleDiagnostics(w http.ResponseWriter) {
	d := p.periph.Diagnostics()
	body, err := d.JSON()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, &Response{Response: json.RawMessage(body)})
}
