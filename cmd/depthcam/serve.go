package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/httputil"
	"github.com/banshee-data/depthcam/internal/monitor"
	"github.com/banshee-data/depthcam/internal/native"
)

// newServeMux mounts the status routes of mon, /api/status and whatever
// attachLog registers.
func newServeMux(mon *monitor.Monitor, attachLog func(*http.ServeMux) error) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mon.AttachRoutes(mux)
	if attachLog != nil {
		if err := attachLog(mux); err != nil {
			return nil, err
		}
	}
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		httputil.WriteJSONOK(w, mon.Status())
	})
	return mux, nil
}

func cmdServe(ctx context.Context, cam *camera.Context, api native.API, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var cf captureFlags
	cf.register(fs)
	listen := fs.String("listen", ":8080", "HTTP listen address")
	grpcListen := fs.String("grpc", ":50051", "gRPC health and status listen address; empty disables")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}
	cfg, err := cf.load(fs)
	if err != nil {
		return err
	}

	logDB, err := openLog(cfg)
	if err != nil {
		return err
	}
	if logDB != nil {
		defer logDB.Close()
	}

	s, err := startSession(cam, api, cfg, logDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			log.Printf("failed to close session: %v", err)
		}
	}()

	mon := monitor.New(s.pipe)
	s.observe = mon.Observe

	var attachLog func(*http.ServeMux) error
	if logDB != nil {
		attachLog = logDB.AttachAdminRoutes
	}
	mux, err := newServeMux(mon, attachLog)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	if *grpcListen != "" {
		lis, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", *grpcListen, err)
		}
		health := monitor.NewHealthServer()
		if err := health.RegisterStatus(mon, time.Second); err != nil {
			return err
		}
		if err := health.Serve(lis); err != nil {
			return err
		}
		defer health.Stop()
		wg.Add(1)
		go func() {
			defer wg.Done()
			health.Watch(ctx, s.pipe, time.Second)
		}()
	}

	// HTTP server goroutine
	server := &http.Server{Addr: *listen, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
				cancel()
			}
		}()
		log.Printf("serving status on %s", *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
	}()

	runErr := s.run(ctx, 0)
	cancel()
	wg.Wait()
	log.Printf("graceful shutdown complete")
	return runErr
}
