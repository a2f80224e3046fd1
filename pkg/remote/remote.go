// Package remote drives a peripheral through the REST API served by package proxy.
package remote

import (
	"bytes"
	"context"
	_ "embed" // Used to embed version for use with user agent
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/advertise"
	"github.com/periph-ble/ble-command/pkg/protocol"
	"github.com/periph-ble/ble-command/pkg/proxy"
	"github.com/periph-ble/ble-command/pkg/stack"
)

var (
	//go:embed version.txt
	libraryVersion string
)

// MaxResponseLength caps the size of a proxy reply.
const MaxResponseLength = 100000

func buildUserAgent(app string) string {
	library := strings.TrimSpace("ble-command/" + libraryVersion)
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return library
	}
	path := strings.Split(build.Path, "/")
	if len(path) == 0 {
		return library
	}

	if app == "" {
		app = path[len(path)-1]
		var version string
		if build.Main.Version != "(devel)" && build.Main.Version != "" {
			version = build.Main.Version
		} else {
			for _, info := range build.Settings {
				if info.Key == "vcs.revision" {
					if len(info.Value) > 8 {
						version = info.Value[0:8]
					}
					break
				}
			}
		}

		if version != "" {
			app = fmt.Sprintf("%s/%s", app, version)
		}
	}

	return fmt.Sprintf("%s %s", app, library)
}

// HttpError is returned when the proxy replies with an error. Err holds the protocol sentinel
// matching the reply's error code, if any, so callers can use errors.Is exactly as they would
// with a local peripheral.
type HttpError struct {
	Code        int
	ErrorCode   string
	Description string
	Err         error
}

func (e *HttpError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	return http.StatusText(e.Code)
}

func (e *HttpError) Unwrap() error {
	return e.Err
}

func (e *HttpError) MayHaveSucceeded() bool {
	if e.Err != nil {
		return protocol.MayHaveSucceeded(e.Err)
	}
	if e.Code >= 400 && e.Code < 500 {
		return false
	}
	return e.Code != http.StatusServiceUnavailable
}

func (e *HttpError) Temporary() bool {
	if e.Err != nil {
		return protocol.Temporary(e.Err)
	}
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout
}

var errorCodes = map[string]error{
	proxy.CodeBusy:         protocol.ErrSlotBusy,
	proxy.CodeRegistered:   protocol.ErrAlreadyRegistered,
	proxy.CodeTimeout:      protocol.ErrTimeout,
	proxy.CodeStackFailure: protocol.ErrStackFailure,
	proxy.CodeRejected:     protocol.ErrStackRejected,
	proxy.CodeUnavailable:  protocol.ErrNotInitialized,
}

// Client sends commands to a peripheral proxy.
type Client struct {
	// The default UserAgent is constructed from the build info, but can be overridden.
	UserAgent string
	BaseURL   string
	client    http.Client
}

// New returns a Client for the proxy at baseURL (e.g., "https://localhost:4443"). Optional
// userAgent can be passed in; otherwise it will be generated from the build info.
func New(baseURL, userAgent string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid proxy URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL %q: missing host", baseURL)
	}
	return &Client{
		UserAgent: buildUserAgent(userAgent),
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func readWithContext(ctx context.Context, r io.Reader, p []byte) ([]byte, error) {
	bytesRead := 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, err := r.Read(p[bytesRead:])
		bytesRead += n
		if err == io.EOF {
			return p[:bytesRead], nil
		}
		if err != nil {
			return p[:bytesRead], err
		}
		if bytesRead == len(p) {
			return p[:bytesRead], nil
		}
	}
}

type envelope struct {
	Response   json.RawMessage `json:"response"`
	Error      string          `json:"error"`
	ErrDetails string          `json:"error_description"`
}

// do sends a request to endpoint and decodes the "response" field of the reply into v, which may
// be nil.
func (c *Client) do(ctx context.Context, method, endpoint string, command interface{}, v interface{}) error {
	var body io.Reader
	if command != nil {
		payload, err := json.Marshal(command)
		if err != nil {
			return err
		}
		log.Debug("Sending %s request to %s: %s", method, endpoint, payload)
		body = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, body)
	if err != nil {
		return &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: false}
	}
	request.Header.Set("User-Agent", c.UserAgent)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	result, err := c.client.Do(request)
	if err != nil {
		return &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: true}
	}
	defer result.Body.Close()

	reply := make([]byte, MaxResponseLength+1)
	reply, err = readWithContext(ctx, result.Body, reply)
	if err != nil {
		return &protocol.CommandError{Err: err, PossibleSuccess: true, PossibleTemporary: false}
	}
	if len(reply) == MaxResponseLength+1 {
		return protocol.NewError("response exceeds maximum length", true, true)
	}
	log.Debug("Server returned %d: %s: %s", result.StatusCode, http.StatusText(result.StatusCode), reply)

	var env envelope
	if err := json.Unmarshal(reply, &env); err != nil {
		if result.StatusCode != http.StatusOK {
			return &HttpError{Code: result.StatusCode, Description: strings.TrimSpace(string(reply))}
		}
		return fmt.Errorf("%w: %s", protocol.ErrBadResponse, err)
	}
	if result.StatusCode != http.StatusOK || env.Error != "" {
		return &HttpError{
			Code:        result.StatusCode,
			ErrorCode:   env.Error,
			Description: env.ErrDetails,
			Err:         errorCodes[env.Error],
		}
	}
	if v == nil {
		return nil
	}
	if len(env.Response) == 0 || string(env.Response) == "null" {
		return fmt.Errorf("%w: missing response field", protocol.ErrBadResponse)
	}
	if err := json.Unmarshal(env.Response, v); err != nil {
		return fmt.Errorf("%w: %s", protocol.ErrBadResponse, err)
	}
	return nil
}

func (c *Client) command(ctx context.Context, endpoint string, command interface{}) error {
	var reply struct {
		Result *bool `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, command, &reply); err != nil {
		return err
	}
	if reply.Result == nil || !*reply.Result {
		return fmt.Errorf("%w: command did not report a result", protocol.ErrBadResponse)
	}
	return nil
}

// RegisterApplication registers appID and returns the interface the stack assigned to it.
func (c *Client) RegisterApplication(ctx context.Context, appID uint16) (stack.Interface, error) {
	var info proxy.ApplicationInfo
	if err := c.do(ctx, http.MethodPost, proxy.PathApplications, &proxy.RegisterRequest{AppID: &appID}, &info); err != nil {
		return stack.InterfaceNone, err
	}
	if info.AppID != appID {
		return stack.InterfaceNone, fmt.Errorf("%w: registered app %d, proxy replied with %d", protocol.ErrBadResponse, appID, info.AppID)
	}
	return info.Interface, nil
}

// Applications lists the registered applications ordered by interface.
func (c *Client) Applications(ctx context.Context) ([]proxy.ApplicationInfo, error) {
	var reply struct {
		Applications []proxy.ApplicationInfo `json:"applications"`
	}
	if err := c.do(ctx, http.MethodGet, proxy.PathApplications, nil, &reply); err != nil {
		return nil, err
	}
	return reply.Applications, nil
}

func (c *Client) ConfigureAdvertising(ctx context.Context, cfg advertise.Config) error {
	return c.command(ctx, proxy.PathAdvertising, &cfg)
}

func (c *Client) ConfigureScanResponse(ctx context.Context, cfg advertise.Config) error {
	return c.command(ctx, proxy.PathScanResponse, &cfg)
}

// StartAdvertising starts advertising. A nil params lets the proxy apply its defaults.
func (c *Client) StartAdvertising(ctx context.Context, params *advertise.Parameters) error {
	if params == nil {
		return c.command(ctx, proxy.PathStart, struct{}{})
	}
	return c.command(ctx, proxy.PathStart, params)
}

// Diagnostics fetches the proxy's router counters.
func (c *Client) Diagnostics(ctx context.Context) (*structpb.Struct, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, proxy.PathDiagnostics, nil, &raw); err != nil {
		return nil, err
	}
	var diag structpb.Struct
	if err := protojson.Unmarshal(raw, &diag); err != nil {
		return nil, fmt.Errorf("%w: %s", protocol.ErrBadResponse, err)
	}
	return &diag, nil
}

// IsProxyError returns true if err was reported by the proxy rather than the transport.
func IsProxyError(err error) bool {
	var httpErr *HttpError
	return errors.As(err, &httpErr)
}
