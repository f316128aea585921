// Package scanner sweeps a port range for running, unregistered apps. Each
// port gets a cheap TCP connect probe and, if something answers, an HTTP
// fetch that checks the response body for the app framework's signature.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// ErrScanTimeout is returned when a sweep cannot finish within its deadline.
var ErrScanTimeout = errors.New("scan timed out")

// maxVerifyBody caps how much of an HTTP response is read during signature
// verification.
const maxVerifyBody = 64 * 1024

// Service implements interfaces.ScannerService.
type Service struct {
	host      string
	signature string
	workers   int

	connectTimeout time.Duration
	verifyTimeout  time.Duration

	cache  *resultCache
	hub    *Hub
	logger *common.Logger
}

// NewService creates the scanner. hub may be nil when no event stream is
// wanted (the gateway process runs without one).
func NewService(logger *common.Logger, config *common.Config, hub *Hub) *Service {
	return &Service{
		host:           config.Gateway.UpstreamHost,
		signature:      strings.ToLower(config.Scanner.Signature),
		workers:        config.Scanner.MaxWorkers,
		connectTimeout: config.Scanner.GetConnectTimeout(),
		verifyTimeout:  config.Scanner.GetVerifyTimeout(),
		cache:          newResultCache(config.Scanner.GetCacheTTL()),
		hub:            hub,
		logger:         logger,
	}
}

// Scan sweeps the requested range with a bounded worker pool. Excluded
// (registered) ports are skipped entirely; results are cached per request
// shape until the TTL lapses or ClearCache is called.
func (s *Service) Scan(ctx context.Context, req models.ScanRequest) (*models.ScanResult, error) {
	if req.PortStart == 0 && req.PortEnd == 0 {
		return nil, fmt.Errorf("scan request has no port range")
	}
	if req.PortStart > req.PortEnd {
		return nil, fmt.Errorf("invalid scan range %d-%d", req.PortStart, req.PortEnd)
	}

	key := cacheKey(req)
	if cached, ok := s.cache.get(key); ok {
		s.logger.Debug().Str("range", fmt.Sprintf("%d-%d", req.PortStart, req.PortEnd)).Msg("Scan served from cache")
		out := *cached
		out.FromCache = true
		return &out, nil
	}

	excluded := make(map[int]bool, len(req.Exclude))
	for _, p := range req.Exclude {
		excluded[p] = true
	}
	var ports []int
	for p := req.PortStart; p <= req.PortEnd; p++ {
		if !excluded[p] {
			ports = append(ports, p)
		}
	}

	workers := s.workers
	if workers > len(ports) {
		workers = len(ports)
	}
	if workers < 1 {
		workers = 1
	}

	// Worst case every probe burns both timeouts; budget for that per
	// worker batch plus slack, so a wedged sweep surfaces as ScanTimeout
	// instead of hanging the handler.
	perPort := s.connectTimeout + s.verifyTimeout
	batches := (len(ports) + workers - 1) / workers
	budget := time.Duration(batches+1)*perPort + 2*time.Second
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	started := time.Now()
	s.emit(models.ScanEvent{Type: models.ScanEventStarted, Timestamp: started})
	s.logger.Info().
		Int("ports", len(ports)).
		Int("workers", workers).
		Str("range", fmt.Sprintf("%d-%d", req.PortStart, req.PortEnd)).
		Msg("Scan started")

	jobs := make(chan int)
	var mu sync.Mutex
	var found []models.PortStatus
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for port := range jobs {
				status, ok := s.probe(ctx, port)
				if !ok {
					continue
				}
				mu.Lock()
				found = append(found, status)
				count := len(found)
				mu.Unlock()
				s.emit(models.ScanEvent{
					Type:      models.ScanEventPortFound,
					Port:      &status,
					Found:     count,
					Timestamp: time.Now(),
				})
			}
		}()
	}

	timedOut := false
feed:
	for _, port := range ports {
		select {
		case jobs <- port:
		case <-ctx.Done():
			timedOut = true
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if timedOut || ctx.Err() != nil {
		s.logger.Warn().Dur("elapsed", time.Since(started)).Msg("Scan timed out")
		return nil, ErrScanTimeout
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Port < found[j].Port })
	result := &models.ScanResult{
		Request:    req,
		Ports:      found,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	s.cache.put(key, result)

	s.emit(models.ScanEvent{Type: models.ScanEventCompleted, Found: len(found), Timestamp: result.FinishedAt})
	s.logger.Info().
		Int("found", len(found)).
		Dur("elapsed", result.FinishedAt.Sub(started)).
		Msg("Scan completed")
	return result, nil
}

// probe checks one port. The bool result is false when nothing answered the
// TCP connect, which is the common case and not worth reporting.
func (s *Service) probe(ctx context.Context, port int) (models.PortStatus, bool) {
	status := models.PortStatus{Port: port}
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", port))

	conn, err := net.DialTimeout("tcp", addr, s.connectTimeout)
	if err != nil {
		return status, false
	}
	conn.Close()
	status.Responded = true

	client := &http.Client{Timeout: s.verifyTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/", nil)
	if err != nil {
		return status, true
	}
	resp, err := client.Do(req)
	if err != nil {
		return status, true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return status, true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyBody))
	if err != nil {
		return status, true
	}
	if s.signature != "" && strings.Contains(strings.ToLower(string(body)), s.signature) {
		status.Verified = true
	}
	return status, true
}

// ClearCache drops all cached sweep results; the next Scan hits the wire.
func (s *Service) ClearCache() {
	s.cache.clear()
	s.logger.Debug().Msg("Scan cache cleared")
}

func (s *Service) emit(event models.ScanEvent) {
	if s.hub != nil {
		s.hub.Broadcast(event)
	}
}

func cacheKey(req models.ScanRequest) string {
	ex := append([]int(nil), req.Exclude...)
	sort.Ints(ex)
	return fmt.Sprintf("%d-%d|%v", req.PortStart, req.PortEnd, ex)
}

// Compile-time check
var _ interfaces.ScannerService = (*Service)(nil)
