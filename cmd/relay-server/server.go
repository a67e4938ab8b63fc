package main

import (
	"context"
	"crypto/tls"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/access/controller"
	"github.com/m-lab/access/token"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/Rachana904/v2vcommunication/internal/netx"
	"github.com/Rachana904/v2vcommunication/internal/relay1"
	"github.com/Rachana904/v2vcommunication/pkg/relay1/spec"
)

var (
	flagCertFile        = flag.String("cert", "", "The file with server certificates in PEM format.")
	flagKeyFile         = flag.String("key", "", "The file with server key in PEM format.")
	flagMeasurementAddr = flag.String("measurement_addr", ":65430", "Listen address/port for the measurement peer")
	flagActuationAddr   = flag.String("actuation_addr", ":65431", "Listen address/port for the actuation peer")
	flagControlAddr     = flag.String("control_addr", ":8080", "Listen address/port for session control and status")
	flagDataDir         = flag.String("datadir", "./data", "Directory to store session archives in")
	tokenVerifyKey      = flagx.FileBytesArray{}
	tokenVerify         bool
	tokenMachine        string

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())
)

func init() {
	flag.Var(&tokenVerifyKey, "token.verify-key", "Public key for verifying access tokens")
	flag.BoolVar(&tokenVerify, "token.verify", false, "Verify access tokens")
	flag.StringVar(&tokenMachine, "token.machine", "", "Use given machine name to verify token claims")
}

// httpServer creates a new *http.Server with explicit Read and Write
// timeouts, the provided address and handler, and an empty TLS
// configuration.
//
// This server can only be used with a net.Listener that returns netx.Conn
// after accepting a new connection.
func httpServer(addr string, handler http.Handler) *http.Server {
	tlsconf := &tls.Config{}
	return &http.Server{
		Addr:      addr,
		Handler:   handler,
		TLSConfig: tlsconf,
		// NOTE: set absolute read and write timeouts for server connections.
		// This prevents clients, or middleboxes, from opening a connection
		// and holding it open indefinitely. This applies equally to TLS and
		// non-TLS servers.
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return netx.ToConnInfo(c).SaveUUID(ctx)
		},
	}
}

// listenAndServe serves srv on a netx listener, optionally with TLS.
func listenAndServe(srv *http.Server, name string) {
	tcpl, err := net.Listen("tcp", srv.Addr)
	rtx.Must(err, "failed to create listener")
	l := netx.NewListener(tcpl.(*net.TCPListener))

	log.Info("listening", "endpoint", name, "addr", srv.Addr)
	go func() {
		defer l.Close()
		var err error
		if *flagCertFile != "" && *flagKeyFile != "" {
			err = srv.ServeTLS(l, *flagCertFile, *flagKeyFile)
		} else {
			err = srv.Serve(l)
		}
		rtx.Must(err, "could not start server")
		defer srv.Close()
	}()
}

func main() {
	flag.Parse()

	// Initialize logging and metrics.
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	log.SetLevel(log.DebugLevel)

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	v, err := token.NewVerifier(tokenVerifyKey.Get()...)
	if (tokenVerify) && err != nil {
		rtx.Must(err, "Failed to load verifier")
	}
	// Enforce tokens on the peer endpoints.
	peerTxPaths := controller.Paths{
		spec.MeasurementPath: true,
		spec.ActuationPath:   true,
	}
	peerTokenPaths := controller.Paths{
		spec.MeasurementPath: true,
		spec.ActuationPath:   true,
	}
	acm, _ := controller.Setup(ctx, v, tokenVerify, tokenMachine,
		peerTxPaths, peerTokenPaths)

	relayHandler := relay1.NewHandler(*flagDataDir)

	// One listening socket per peer role, plus one for session control and
	// status.
	measurementMux := http.NewServeMux()
	measurementMux.Handle(spec.MeasurementPath, http.HandlerFunc(relayHandler.Measurement))
	listenAndServe(httpServer(*flagMeasurementAddr, acm.Then(measurementMux)),
		"measurement")

	actuationMux := http.NewServeMux()
	actuationMux.Handle(spec.ActuationPath, http.HandlerFunc(relayHandler.Actuation))
	listenAndServe(httpServer(*flagActuationAddr, acm.Then(actuationMux)),
		"actuation")

	controlMux := http.NewServeMux()
	controlMux.Handle(spec.SessionStartPath, http.HandlerFunc(relayHandler.SessionStart))
	controlMux.Handle(spec.SessionStopPath, http.HandlerFunc(relayHandler.SessionStop))
	controlMux.Handle(spec.StatusPath, http.HandlerFunc(relayHandler.Status))
	listenAndServe(httpServer(*flagControlAddr, controlMux), "control")

	<-ctx.Done()
	cancel()
}
