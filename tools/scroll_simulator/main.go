// Command scroll_simulator replays scroll sweeps and edits against a running
// embedpool server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/patrickwarner/embedpool/internal/api"
	"github.com/patrickwarner/embedpool/internal/config"
	"github.com/patrickwarner/embedpool/internal/db"
	"github.com/patrickwarner/embedpool/internal/models"
	"github.com/patrickwarner/embedpool/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	server    string
	readers   int
	sweeps    int
	step      float64
	interval  time.Duration
	jitter    float64
	editRate  float64
	stats     bool
	flush     bool
	redisAddr string
	session   string
	debug     bool
)

var logger *zap.Logger

var httpClient *http.Client

const statsInterval = 5 * time.Second

var (
	countSent      uint64
	countLimited   uint64
	countErrors    uint64
	countEdits     uint64
	decisionsMu    sync.Mutex
	decisionCounts = map[string]uint64{}
)

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "embedpool base URL")
	flag.IntVar(&readers, "readers", 1, "concurrent simulated readers")
	flag.IntVar(&sweeps, "sweeps", 2, "top-to-bottom-and-back sweeps per reader")
	flag.Float64Var(&step, "step", 120, "pixels per scroll event")
	flag.DurationVar(&interval, "interval", 16*time.Millisecond, "delay between scroll events")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for event spacing")
	flag.Float64Var(&editRate, "edit-rate", 0.01, "probability of editing an attached slot after a scroll event")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "delete the session's stored payloads before starting")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.StringVar(&session, "session", "", "page session to flush (defaults to PAGE_SESSION)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "scroll-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient = &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: 5 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   readers + 1,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flush {
		if err := flushSession(ctx); err != nil {
			logger.Fatal("flush session", zap.Error(err))
		}
	}

	snap, err := fetchState(ctx)
	if err != nil {
		logger.Fatal("fetch initial state", zap.Error(err))
	}
	bottom := pageBottom(snap)
	logger.Info("starting scroll simulation",
		zap.Int("readers", readers),
		zap.Int("sweeps", sweeps),
		zap.Float64("page_bottom", bottom),
		zap.Int("frames", len(snap.Frames)))

	done := make(chan struct{})
	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					return
				}
			}
		}()
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < readers; i++ {
		r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
		g.Go(func() error { return read(gctx, r, bottom) })
	}
	err = g.Wait()
	close(done)
	printStats()

	final, stateErr := fetchState(context.Background())
	if stateErr == nil {
		logger.Info("final pool state",
			zap.Strings("attached", final.AttachedSlots()),
			zap.Uint64("passes", final.Passes))
	}
	logger.Info("simulation finished", zap.Duration("elapsed", time.Since(start)))
	if err != nil && ctx.Err() == nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
}

// read sweeps the page top to bottom and back, sweeps times.
func read(ctx context.Context, r *rand.Rand, bottom float64) error {
	for s := 0; s < sweeps; s++ {
		for top := 0.0; top <= bottom; top += step {
			if err := scrollAndMaybeEdit(ctx, r, top); err != nil {
				return err
			}
		}
		for top := bottom; top >= 0; top -= step {
			if err := scrollAndMaybeEdit(ctx, r, top); err != nil {
				return err
			}
		}
	}
	return nil
}

func scrollAndMaybeEdit(ctx context.Context, r *rand.Rand, top float64) error {
	if err := scroll(ctx, top); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Debug("scroll failed", zap.Float64("scroll_top", top), zap.Error(err))
	}
	if editRate > 0 && r.Float64() < editRate {
		if err := editAttached(ctx, r); err != nil {
			atomic.AddUint64(&countErrors, 1)
			logger.Debug("edit failed", zap.Error(err))
		}
	}

	wait := interval
	if jitter > 0 {
		jf := 1 + (r.Float64()*2-1)*jitter
		if jf < 0.1 {
			jf = 0.1
		}
		wait = time.Duration(float64(wait) * jf)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func scroll(ctx context.Context, top float64) error {
	var resp api.ScrollResponse
	status, err := doJSON(ctx, http.MethodPost, "/api/scroll", api.ScrollRequest{ScrollTop: top}, &resp)
	atomic.AddUint64(&countSent, 1)
	if status == http.StatusTooManyRequests {
		atomic.AddUint64(&countLimited, 1)
		return nil
	}
	if err != nil {
		return err
	}
	decisionsMu.Lock()
	decisionCounts[resp.Decision]++
	decisionsMu.Unlock()
	logger.Debug("scrolled", zap.Float64("scroll_top", resp.Viewport.ScrollTop), zap.String("decision", resp.Decision))
	return nil
}

func editAttached(ctx context.Context, r *rand.Rand) error {
	snap, err := fetchState(ctx)
	if err != nil {
		return err
	}
	attached := snap.AttachedSlots()
	if len(attached) == 0 {
		return nil
	}
	slot := attached[r.Intn(len(attached))]
	text := fmt.Sprintf("# edited by scroll simulator\nzoom: %d\n", 10+r.Intn(8))
	var out api.SlotText
	if _, err := doJSON(ctx, http.MethodPut, "/api/slots/"+slot+"/text", api.SlotText{Text: text}, &out); err != nil {
		return err
	}
	atomic.AddUint64(&countEdits, 1)
	logger.Debug("edited slot", zap.String("slot", slot), zap.Bool("live", out.Live))
	return nil
}

func fetchState(ctx context.Context) (models.PoolSnapshot, error) {
	var snap models.PoolSnapshot
	_, err := doJSON(ctx, http.MethodGet, "/api/state", nil, &snap)
	return snap, err
}

// pageBottom is the scroll offset that centers the bottom edge of the last
// slot.
func pageBottom(snap models.PoolSnapshot) float64 {
	var end float64
	for _, s := range snap.Slots {
		end = max(end, s.Geometry.Top+s.Geometry.Height)
	}
	return max(0, end-snap.Viewport.Height/2)
}

func doJSON(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, server+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func flushSession(ctx context.Context) error {
	cfg := config.Load()
	addr := redisAddr
	if addr == "" {
		addr = cfg.RedisAddr
	}
	sess := session
	if sess == "" {
		sess = cfg.PageSession
	}
	if sess == "" {
		return fmt.Errorf("flush needs -session or PAGE_SESSION")
	}

	store, err := db.InitRedis(ctx, addr, sess, cfg.PayloadTTL)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.FlushSession(ctx)
	if err != nil {
		return err
	}
	logger.Info("session payloads flushed",
		zap.String("addr", addr),
		zap.String("session", sess),
		zap.Int("keys_deleted", n))
	return nil
}

func printStats() {
	decisionsMu.Lock()
	decisions := make(map[string]uint64, len(decisionCounts))
	for k, v := range decisionCounts {
		decisions[k] = v
	}
	decisionsMu.Unlock()

	logger.Info("stats",
		zap.Uint64("sent", atomic.LoadUint64(&countSent)),
		zap.Uint64("rate_limited", atomic.LoadUint64(&countLimited)),
		zap.Uint64("errors", atomic.LoadUint64(&countErrors)),
		zap.Uint64("edits", atomic.LoadUint64(&countEdits)),
		zap.Any("decisions", decisions))
}
