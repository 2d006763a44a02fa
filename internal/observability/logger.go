package observability

import (
	"math/rand"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLoggerWithService constructs a production zap.Logger for the named binary.
// The returned logger should be passed to other components for structured logging.
func InitLoggerWithService(serviceName string) (*zap.Logger, error) {
	level := LevelFor(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	return InitLoggerWithLevel(level, serviceName)
}

// InitLoggerWithLevel constructs a zap.Logger at the provided level.
// The returned logger is named with the service name and installed as the global logger.
func InitLoggerWithLevel(level zapcore.Level, serviceName string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"

	// The MCP binary speaks JSON-RPC on stdout, so logs always go to stderr.
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	logger = logger.Named(serviceName).With(zap.String("service", serviceName))
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// LevelFor picks the log level from the deployment environment and an
// explicit LOG_LEVEL override. An explicit level always wins.
func LevelFor(env, explicit string) zapcore.Level {
	switch strings.ToUpper(explicit) {
	case "DEBUG":
		return zap.DebugLevel
	case "INFO":
		return zap.InfoLevel
	case "WARN":
		return zap.WarnLevel
	case "ERROR":
		return zap.ErrorLevel
	}

	switch strings.ToLower(env) {
	case "development", "dev":
		return zap.DebugLevel
	default:
		return zap.InfoLevel
	}
}

// Sampler decides whether a high-volume debug log line is emitted.
// Reconcile passes fire on every scroll burst, so per-pass detail is sampled.
type Sampler struct {
	rate float64

	mu      sync.Mutex
	total   int64
	sampled int64
}

// NewSampler returns a Sampler emitting roughly rate (0.0-1.0) of the calls.
func NewSampler(rate float64) *Sampler {
	return &Sampler{rate: rate}
}

// SamplerForEnv returns a Sampler tuned for the ENV variable.
func SamplerForEnv() *Sampler {
	switch strings.ToLower(os.Getenv("ENV")) {
	case "development", "dev":
		return NewSampler(1.0)
	case "staging", "test":
		return NewSampler(0.5)
	default:
		return NewSampler(0.1)
	}
}

// ShouldSample reports whether the current call should be logged.
// A nil Sampler always samples.
func (s *Sampler) ShouldSample() bool {
	if s == nil {
		return true
	}

	var ok bool
	switch {
	case s.rate >= 1.0:
		ok = true
	case s.rate <= 0.0:
		ok = false
	default:
		ok = rand.Float64() < s.rate
	}

	s.mu.Lock()
	s.total++
	if ok {
		s.sampled++
	}
	s.mu.Unlock()
	return ok
}

// Stats returns the number of sampled and total calls so far.
func (s *Sampler) Stats() (sampled, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampled, s.total
}
