// This package provides utilities that underlie the specific commands.
// The idea is to make the specific command files very small, e.g.:
//
//	func main() {
//	  var cfg Config
//	  cmd.FailOnError(cmd.ReadConfigFile(*configFile, &cfg), "Reading config file")
//	  // command logic
//	}
package cmd

import (
	"encoding/json"
	"encoding/pem"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acmecore/acmeclient/log"
	"github.com/acmecore/acmeclient/metrics"
)

// Because we don't know when this init will be called with respect to
// flag.Parse() and other flag definitions, we can't rely on the regular
// flag mechanism. But this one is fine.
func init() {
	for _, v := range os.Args {
		if v == "--version" || v == "-version" {
			fmt.Println(VersionString())
			os.Exit(0)
		}
	}
}

// StatsAndLogging builds the metrics scope and logger every command
// starts with.
func StatsAndLogging(name string) (metrics.Scope, log.Logger) {
	scope := metrics.NewPromScope(prometheus.DefaultRegisterer)
	logger := log.New(name)
	return scope, logger
}

// FailOnError exits and prints an error message if we encountered a problem.
func FailOnError(err error, msg string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", msg, err)
	os.Exit(1)
}

// LoadCert loads a PEM-formatted certificate from the provided path,
// returning the DER bytes, or an error if it couldn't be decoded.
func LoadCert(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("no certificate path was provided")
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("not a PEM-encoded certificate")
	}
	return block.Bytes, nil
}

// DebugServer starts a metrics/expvar HTTP server on addr. Typical usage
// is to run it in a goroutine:
//
//	go cmd.DebugServer(c.DebugAddr)
func DebugServer(addr string) error {
	if addr == "" {
		return errors.New("no address was given for the debug server")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding debug server to %s: %w", addr, err)
	}
	http.Handle("/metrics", promhttp.Handler())
	http.Handle("/debug/vars", expvar.Handler())
	return http.Serve(ln, nil)
}

// ReadConfigFile takes a file path as an argument and attempts to
// unmarshal the content of the file into a struct containing this
// client's configuration.
func ReadConfigFile(filename string, out interface{}) error {
	configData, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(configData, out)
}

// VersionString produces a friendly application version string.
func VersionString() string {
	name := path.Base(os.Args[0])
	return fmt.Sprintf("Versions: %s Golang=(%s)", name, runtime.Version())
}

var signalToName = map[os.Signal]string{
	syscall.SIGTERM: "SIGTERM",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGHUP:  "SIGHUP",
}

// CatchSignals catches SIGTERM, SIGINT, SIGHUP and executes a callback
// method before exiting.
func CatchSignals(logger log.Logger, callback func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, syscall.SIGINT)
	signal.Notify(sigChan, syscall.SIGHUP)

	sig := <-sigChan
	logger.Info(fmt.Sprintf("Caught %s", signalToName[sig]))

	if callback != nil {
		callback()
	}

	logger.Info("Exiting")
	os.Exit(0)
}
