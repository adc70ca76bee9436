package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vitalwatch/internal/config"
	"vitalwatch/internal/handlers"
	"vitalwatch/internal/kafka"
	"vitalwatch/internal/logger"
	"vitalwatch/internal/middleware"
)

// Processor is the high-level coordinator for the check API and the readings consumer.
type Processor struct {
	cfg        *config.Config
	components *Components
	consumer   *kafka.Consumer
	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}
	wg         sync.WaitGroup
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	return &Processor{
		cfg:   cfg,
		ready: make(chan struct{}),
	}
}

// Ready is closed once the HTTP listener is bound
func (p *Processor) Ready() <-chan struct{} {
	return p.ready
}

// Addr returns the bound HTTP address. Valid after Ready.
func (p *Processor) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Run starts background goroutines and blocks until context cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("processor starting")

	components, err := Open(ctx, p.cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize components")
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	p.components = components

	if p.cfg.Readings.Enabled {
		consumer, err := kafka.NewConsumer(p.cfg.Readings, components.Checker)
		if err != nil {
			components.Close()
			return fmt.Errorf("failed to initialize readings consumer: %w", err)
		}
		p.consumer = consumer
		components.register("readings", consumer)
	}

	if err := p.initHTTPServer(); err != nil {
		log.Error().Err(err).Msg("failed to initialize HTTP server")
		if p.consumer != nil {
			p.consumer.Stop()
		}
		components.Close()
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	// Start HTTP server in background
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.Addr()).Msg("starting HTTP server")
		if err := p.httpServer.Serve(p.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Readings consumer runs until ctx is done
	if p.consumer != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("readings consumer stopped with error")
			}
		}()
	}

	// Stats reporting goroutine
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	close(p.ready)

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// Graceful shutdown
	return p.shutdown()
}

// initHTTPServer binds the listener and registers handlers
func (p *Processor) initHTTPServer() error {
	mux := http.NewServeMux()

	handlers.NewVitalsHandler(p.components.Checker, p.cfg.HTTP.MaxBodySize).Register(mux)

	// Health check
	mux.HandleFunc("GET /health", p.healthHandler)

	// Stats endpoint
	mux.HandleFunc("GET /stats", p.statsHandler)

	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", p.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	p.listener = ln

	p.httpServer = &http.Server{
		Handler: middleware.Chain(
			mux,
			middleware.Recovery,
			middleware.Logging,
		),
		ReadTimeout:  p.cfg.HTTP.ReadTimeout,
		WriteTimeout: p.cfg.HTTP.WriteTimeout,
		IdleTimeout:  p.cfg.HTTP.IdleTimeout,
	}

	return nil
}

// shutdown performs graceful shutdown
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Wait for the consumer and stats goroutines
	p.wg.Wait()

	// 3. Close the reader, then sinks and store
	if p.consumer != nil {
		log.Info().Msg("closing readings consumer")
		if err := p.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("consumer close error")
		}
	}

	log.Info().Msg("closing alert sinks and patient store")
	if err := p.components.Close(); err != nil {
		log.Error().Err(err).Msg("component close error")
	}

	log.Info().Msg("processor stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			event := log.Info()
			if p.components.Producer != nil {
				s := p.components.Producer.Stats()
				event = event.
					Uint64("producer_sent", s.MessagesSent).
					Uint64("producer_failed", s.MessagesFailed).
					Uint64("producer_bytes", s.BytesWritten)
			}
			if p.consumer != nil {
				s := p.consumer.Stats()
				event = event.
					Uint64("readings_checked", s.Checked).
					Uint64("readings_invalid", s.Invalid).
					Uint64("readings_failed", s.Failed)
			}
			event.Msg("stats")
		}
	}
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := p.components.HealthCheck(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// StatsResponse is the body of GET /stats
type StatsResponse struct {
	Sinks    int                  `json:"sinks"`
	Producer *kafka.ProducerStats `json:"producer,omitempty"`
	Readings *kafka.ConsumerStats `json:"readings,omitempty"`
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Sinks: p.components.Sender.Len()}
	if p.components.Producer != nil {
		s := p.components.Producer.Stats()
		resp.Producer = &s
	}
	if p.consumer != nil {
		s := p.consumer.Stats()
		resp.Readings = &s
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
