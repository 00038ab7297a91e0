package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/depthcam/internal/httputil"
	"github.com/banshee-data/depthcam/internal/monitor"
)

// statusClient is replaced in tests.
var statusClient httputil.HTTPClient = &http.Client{Timeout: 5 * time.Second}

func cmdStatus(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Address of a running depthcam serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var st monitor.Status
	if err := httputil.GetJSON(statusClient, strings.TrimSuffix(*addr, "/")+"/api/status", &st); err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}
	printStatus(out, st)
	return nil
}

func printStatus(out io.Writer, st monitor.Status) {
	fmt.Fprintf(out, "state:    %s\n", st.State)
	for _, s := range st.Streams {
		fmt.Fprintf(out, "stream:   %s\n", s)
	}
	fmt.Fprintf(out, "frames:   %d (%.1f/s, %d dropped, %d timeouts, %d errors)\n",
		st.Frames, st.Rate, st.Dropped, st.Timeouts, st.Errors)
	fmt.Fprintf(out, "last:     #%d at %.3f ms\n", st.LastFrameNumber, st.LastTimestampMs)
	if d := st.Depth; d != nil {
		fmt.Fprintf(out, "depth:    %d samples, min %.3f m, median %.3f m, mean %.3f m, max %.3f m\n",
			d.Samples, d.Min, d.Median, d.Mean, d.Max)
	}
}
