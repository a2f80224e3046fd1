package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/periph-ble/ble-command/internal/log"
	"github.com/periph-ble/ble-command/pkg/cli"
	"github.com/periph-ble/ble-command/pkg/proxy"
)

const (
	defaultPort     = 8080
	shutdownTimeout = 5 * time.Second
)

const (
	EnvTlsCert    = "BLE_HTTP_PROXY_TLS_CERT"
	EnvTlsKey     = "BLE_HTTP_PROXY_TLS_KEY"
	EnvHost       = "BLE_HTTP_PROXY_HOST"
	EnvPort       = "BLE_HTTP_PROXY_PORT"
	EnvTimeout    = "BLE_HTTP_PROXY_TIMEOUT"
	EnvSelfSigned = "BLE_HTTP_PROXY_SELF_SIGNED"
)

const nonLocalhostWarning = `
Do not listen on a network interface without adding client authentication. Any client that can
reach the proxy can reconfigure what this device advertises.`

type HttpProxyConfig struct {
	keyFilename  string
	certFilename string
	selfSigned   bool
	host         string
	port         int
	timeout      time.Duration
}

var (
	httpConfig = &HttpProxyConfig{}
)

func init() {
	flag.StringVar(&httpConfig.certFilename, "cert", "", "TLS certificate chain `file` with concatenated server, intermediate CA, and root CA certificates")
	flag.StringVar(&httpConfig.keyFilename, "tls-key", "", "Server TLS private key `file`")
	flag.BoolVar(&httpConfig.selfSigned, "self-signed", false, "Serve TLS with a freshly generated self-signed certificate")
	flag.StringVar(&httpConfig.host, "host", "localhost", "Proxy server `hostname`")
	flag.IntVar(&httpConfig.port, "port", defaultPort, "`Port` to listen on")
	flag.DurationVar(&httpConfig.timeout, "timeout", proxy.DefaultTimeout, "Timeout interval for each request")
}

func Usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [OPTION...]\n", os.Args[0])
	fmt.Fprintf(out, "\nA server that exposes a REST API for configuring a BLE peripheral")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, nonLocalhostWarning)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	flag.PrintDefaults()
}

func (c *HttpProxyConfig) useTLS() bool {
	return c.certFilename != "" || c.keyFilename != ""
}

func main() {
	config, err := cli.NewConfig(cli.FlagDevice | cli.FlagBackend | cli.FlagProfile | cli.FlagTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %s\n", err)
		os.Exit(1)
	}

	defer func() {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}()

	flag.Usage = Usage
	config.RegisterCommandLineFlags()
	flag.Parse()
	if err = readFromEnvironment(); err != nil {
		return
	}
	config.ReadFromEnvironment()

	if httpConfig.host != "localhost" {
		fmt.Fprintln(os.Stderr, nonLocalhostWarning)
	}
	if httpConfig.useTLS() && httpConfig.selfSigned {
		err = fmt.Errorf("-self-signed cannot be combined with -cert or -tls-key")
		return
	}

	log.Debug("Bringing up peripheral")
	periph, err := config.Open()
	if err != nil {
		return
	}
	defer periph.Close()

	if profile := config.Profile(); profile != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpConfig.timeout)
		err = profile.Apply(ctx, periph)
		cancel()
		if err != nil {
			return
		}
	}

	p := proxy.New(periph)
	p.Timeout = httpConfig.timeout
	addr := fmt.Sprintf("%s:%d", httpConfig.host, httpConfig.port)

	var server *http.Server
	if httpConfig.selfSigned {
		var certPEM string
		server, certPEM = NewServer(addr)
		fmt.Fprintf(os.Stderr, "Serving with self-signed certificate:\n%s", certPEM)
	} else {
		server = &http.Server{Addr: addr}
	}
	// To add application logic, such as client authentication, wrap p in a http.Handler that
	// performs the check before invoking p.ServeHTTP.
	server.Handler = p

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info("Listening on %s", addr)
	switch {
	case httpConfig.selfSigned:
		err = server.ListenAndServeTLS("", "")
	case httpConfig.useTLS():
		err = server.ListenAndServeTLS(httpConfig.certFilename, httpConfig.keyFilename)
	default:
		err = server.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		log.Info("Server stopped")
		err = nil
		return
	}
	log.Error("Server stopped: %s", err)
}

// readFromEnvironment applies configuration from environment variables.
// Values are not overwritten.
func readFromEnvironment() error {
	if httpConfig.certFilename == "" {
		httpConfig.certFilename = os.Getenv(EnvTlsCert)
	}

	if httpConfig.keyFilename == "" {
		httpConfig.keyFilename = os.Getenv(EnvTlsKey)
	}

	if httpConfig.host == "localhost" {
		host, ok := os.LookupEnv(EnvHost)
		if ok {
			httpConfig.host = host
		}
	}

	if !httpConfig.selfSigned {
		if selfSigned, ok := os.LookupEnv(EnvSelfSigned); ok {
			httpConfig.selfSigned = selfSigned != "false" && selfSigned != "0"
		}
	}

	var err error
	if httpConfig.port == defaultPort {
		if port, ok := os.LookupEnv(EnvPort); ok {
			httpConfig.port, err = strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid port: %s", port)
			}
		}
	}

	if httpConfig.timeout == proxy.DefaultTimeout {
		if timeoutEnv, ok := os.LookupEnv(EnvTimeout); ok {
			httpConfig.timeout, err = time.ParseDuration(timeoutEnv)
			if err != nil {
				return fmt.Errorf("invalid timeout: %s", timeoutEnv)
			}
		}
	}

	return nil
}
