// Package debug hosts the optional introspection utilities: a pprof server
// and wire message dumps. Nothing here is required for normal operation.
package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// StartPprofServer launches the pprof HTTP server on the configured port.
// Blocking; run it in its own goroutine.
func StartPprofServer(log *logrus.Logger, port int) {
	addr := fmt.Sprintf(":%d", port)
	log.Infof("pprof server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Warnf("pprof server exited: %v", err)
	}
}

var dumper = spew.ConfigState{Indent: "  ", DisableCapacities: true, DisablePointerAddresses: true}

// DumpMessage logs a decoded protocol message with its direction, e.g.
// "recv" or "send". Gate calls behind the message logging config flag; the
// dump is not cheap.
func DumpMessage(log *logrus.Logger, direction, remote string, msg interface{}) {
	log.WithFields(logrus.Fields{
		"dir":    direction,
		"remote": remote,
	}).Debug(dumper.Sdump(msg))
}
