// Command depthcam lists depth cameras, captures frame sets into a capture
// log and serves live pipeline status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/native"
	"github.com/banshee-data/depthcam/internal/testutil"
	"github.com/banshee-data/depthcam/internal/version"
)

// mockSerial is the serial number of the simulated camera.
const mockSerial = "841512070001"

var errUsage = errors.New("usage")

const usage = `usage: depthcam [flags] <command> [command flags]

commands:
  devices   list connected devices, sensors, options and stream profiles
  capture   capture frame sets into the capture log and PLY files
  serve     stream continuously and serve status, debug pages and health
  status    print the status of a running serve

flags:
`

func main() {
	global := flag.NewFlagSet("depthcam", flag.ContinueOnError)
	mock := global.Bool("mock", false, "Use a simulated camera instead of the SDK")
	debug := global.Bool("debug", false, "Enable debug logging")
	showVersion := global.Bool("version", false, "Print the version and exit")
	global.Usage = func() {
		fmt.Fprint(global.Output(), usage)
		global.PrintDefaults()
	}
	if err := global.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if *showVersion {
		printVersion(os.Stdout)
		return
	}
	monitoring.SetDebug(*debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, openAPI(*mock), global.Args(), os.Stdout)
	if errors.Is(err, errUsage) {
		global.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("depthcam: %v", err)
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, version.String())
}

// openAPI returns the SDK binding, or a simulated camera producing frame
// sets at its nominal rate.
func openAPI(mock bool) native.API {
	if !mock {
		return native.Default()
	}
	m := testutil.NewMock(testutil.D435(mockSerial))
	m.AutoEmit = true
	return m
}

// run executes one command against api.
func run(ctx context.Context, api native.API, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]
	if cmd == "status" {
		return cmdStatus(args, out)
	}

	cam, err := camera.NewContext(api)
	if err != nil {
		return fmt.Errorf("failed to create camera context: %w", err)
	}
	defer func() {
		if err := cam.Close(); err != nil {
			log.Printf("failed to close camera context: %v", err)
		}
	}()

	switch cmd {
	case "devices":
		return cmdDevices(cam, args, out)
	case "capture":
		return cmdCapture(ctx, cam, api, args, out)
	case "serve":
		return cmdServe(ctx, cam, api, args)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}
