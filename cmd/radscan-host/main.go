// radscan-host is the host controller of the spectrometer scanning
// stage. It homes the two-axis stage against its end-stops, drives the
// serpentine measurement raster slice by slice, and persists the
// per-slice results. A status API compatible with browser frontends is
// served over HTTP/WebSocket.
//
// Usage:
//
//	radscan-host -config ~/scanner.cfg [options]
//
// Options:
//
//	-config string  Scanner configuration file (required)
//	-api string     Status API listen address (overrides config)
//	-sim            Run against the simulated stage
//	-scan           Start the configured scan job immediately
//	-logfile string Log file path with rotation (default: stderr)
//
// Examples:
//
//	# Idle host with API, simulated hardware
//	radscan-host -config scanner.cfg -sim
//
//	# Run the configured scan job and exit
//	radscan-host -config scanner.cfg -sim -scan
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"radscan-go-migration/pkg/api"
	"radscan-go-migration/pkg/config"
	"radscan-go-migration/pkg/export"
	"radscan-go-migration/pkg/log"
	"radscan-go-migration/pkg/psu"
	"radscan-go-migration/pkg/scan"
	"radscan-go-migration/pkg/scanner"
	"radscan-go-migration/pkg/serial"
	"radscan-go-migration/pkg/stage"
)

func main() {
	configFile := flag.String("config", "", "Scanner configuration file (required)")
	apiAddr := flag.String("api", "", "Status API listen address (overrides config)")
	sim := flag.Bool("sim", false, "Run against the simulated stage")
	runScan := flag.Bool("scan", false, "Start the configured scan job immediately")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")

	flag.Parse()

	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config is required\n")
		flag.Usage()
		os.Exit(1)
	}

	// Set up logging before any component derives its logger.
	logger := log.New("radscan")
	log.ConfigureFromEnv(logger)
	if *logFile != "" {
		fileLogger, writer, err := log.NewFileLogger("radscan", log.RotationConfig{
			Filename: *logFile,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer writer.Close()
		log.ConfigureFromEnv(fileLogger)
		logger = fileLogger
	}
	log.SetDefaultLogger(logger)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}
	hc, err := config.LoadHost(cfg)
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}
	for _, section := range cfg.GetUnusedSections() {
		logger.Warn("unused config section [%s]", section)
	}

	var capture *log.CaptureBuffer
	if hc.Output.WriteLog {
		capture = log.NewCaptureBuffer()
		logger.SetCapture(capture)
	}

	logger.Info("radscan host starting")
	logger.Info("config: %s", *configFile)
	logger.Info("scan: %s, %dx%d, %d slices",
		hc.Scan.Name, hc.Scan.Size, hc.Scan.Size, len(hc.Scan.SliceList))

	if !*sim {
		// The stepper interface card and the spectrometer attach
		// through vendor drivers that are not part of this binary.
		logger.Error("no hardware stage driver is linked into this build; run with -sim")
		os.Exit(1)
	}

	ma := stage.NewSimMotor(20 * time.Millisecond)
	mb := stage.NewSimMotor(20 * time.Millisecond)
	mz := stage.NewSimMotor(20 * time.Millisecond)
	port := stage.NewSimPort()
	st := stage.NewStage(ma, mb, mz, port, hc)

	// The bench supply is real hardware even in sim runs; open it only
	// when its serial device actually exists.
	var supply *psu.Supply
	if hc.PSU != nil && serial.IsDeviceAvailable(hc.PSU.Device) {
		supply, err = psu.Open(*hc.PSU)
		if err != nil {
			logger.Error("power supply: %v", err)
			os.Exit(1)
		}
		if id, err := supply.Identify(); err == nil {
			logger.Info("power supply: %s", id)
		}
	} else if hc.PSU != nil {
		logger.Warn("power supply device %s not present, continuing without it", hc.PSU.Device)
	}

	sc := scanner.New(scanner.Config{
		Host:     hc,
		Stage:    st,
		Acquirer: &simAcquirer{intTime: hc.Scan.IntTimeList[0]},
		Supply:   supply,
		Notifier: export.NewLogNotifier(),
		Capture:  capture,
	})
	defer sc.Close()

	// The simulated port has no physics behind it: replay a clean
	// end-stop sequence whenever the host starts homing.
	go simEndstopLoop(sc, port)

	// Status API server.
	listen := *apiAddr
	if listen == "" && hc.API != nil {
		listen = hc.API.Listen
	}
	var apiServer *api.Server
	if listen != "" {
		apiServer = api.New(api.Config{Addr: listen, Scanner: sc})
		go func() {
			if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("API server: %v", err)
			}
		}()
		logger.Info("status API on %s", listen)
	}

	// Signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if *runScan {
		if err := sc.RunScan(ctx); err != nil {
			logger.Error("scan job: %v", err)
		}
	} else {
		logger.Info("host ready, waiting for API commands")
		<-ctx.Done()
	}

	if apiServer != nil {
		apiServer.Stop()
	}
	logger.Info("radscan host stopped")
}

// simAcquirer synthesizes a smooth beam profile so simulated runs
// produce plausible records and charts.
type simAcquirer struct {
	intTime float64
}

func (a *simAcquirer) TriggerAcquisition(x, y float64) (scan.Sample, error) {
	// Integration plus readout, scaled down to keep sim runs short.
	time.Sleep(time.Duration(a.intTime*10) * time.Millisecond)

	d2 := (x-5)*(x-5) + (y-5)*(y-5)
	power := 40.0 / (1.0 + d2/8.0)
	return scan.Sample{
		Power:      power,
		PhotonFlux: power * 0.119,
		Color:      [3]float64{power / 40, power / 55, power / 80},
		Ratio:      2.0,
	}, nil
}

// simEndstopLoop watches the mode tracker and walks the simulated port
// through the Y/X/Z contact sequence each time homing starts.
func simEndstopLoop(sc *scanner.Scanner, port *stage.SimPort) {
	seq := []byte{
		stage.MaskYClosed, stage.MaskAllOpen, stage.MaskYClosed,
		stage.MaskXYClosed, stage.MaskYClosed, stage.MaskXYClosed,
		stage.MaskHomeDone,
	}
	for {
		for sc.Mode() != stage.ModeHoming {
			time.Sleep(10 * time.Millisecond)
		}
		time.Sleep(50 * time.Millisecond)
		for _, m := range seq {
			port.SetMask(m)
			time.Sleep(60 * time.Millisecond)
		}
		for sc.Mode() == stage.ModeHoming {
			time.Sleep(10 * time.Millisecond)
		}
		port.SetMask(stage.MaskAllOpen)
	}
}
