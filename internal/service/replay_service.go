package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/devrev/pairdb/contextmap/internal/contextmap"
	"github.com/devrev/pairdb/contextmap/internal/errors"
	"github.com/devrev/pairdb/contextmap/internal/metrics"
	"github.com/devrev/pairdb/contextmap/internal/model"
	"github.com/devrev/pairdb/contextmap/internal/util"
	"github.com/devrev/pairdb/contextmap/internal/util/workerpool"
	"github.com/devrev/pairdb/contextmap/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Index is the context map instantiation scripts run against
type Index = contextmap.ContextMap[string, int64, string]

// ReplayConfig holds replay configuration
type ReplayConfig struct {
	DefaultPolicy contextmap.Policy
	StopOnError   bool
	Workers       int
	QueueSize     int
	Timeout       time.Duration
}

// ReplayService executes scripts, each against its own fresh index
type ReplayService struct {
	config    *ReplayConfig
	validator *validation.Validator
	registry  prometheus.Registerer
	logger    *zap.Logger

	mu      sync.Mutex
	metrics map[string]*metrics.Metrics
}

// NewReplayService creates a new replay service. reg may be nil to disable
// metrics.
func NewReplayService(cfg *ReplayConfig, validator *validation.Validator, reg prometheus.Registerer, logger *zap.Logger) *ReplayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = validation.NewValidator()
	}
	return &ReplayService{
		config:    cfg,
		validator: validator,
		registry:  reg,
		logger:    logger,
		metrics:   make(map[string]*metrics.Metrics),
	}
}

// ParseScript decodes a YAML script. Unknown fields are rejected so typos in
// step definitions do not silently turn into unchecked steps.
func ParseScript(source string, data []byte) (*model.Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var script model.Script
	if err := dec.Decode(&script); err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", source, err)
	}

	script.Source = source
	script.Checksum = util.ComputeChecksum(data)
	return &script, nil
}

// LoadScript reads and parses a script file
func LoadScript(path string) (*model.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(path, data)
}

// metricsFor returns the metrics of the index named name, registering them
// on first use
func (s *ReplayService) metricsFor(name string) *metrics.Metrics {
	if s.registry == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[name]
	if !ok {
		m = metrics.NewMetrics(name, s.registry)
		s.metrics[name] = m
	}
	return m
}

// Replay validates script and runs every step against a new index. The
// returned report is nil only when validation fails.
func (s *ReplayService) Replay(ctx context.Context, script *model.Script) (*model.Report, error) {
	if err := s.validator.ValidateScript(script); err != nil {
		return nil, err
	}

	policy := s.config.DefaultPolicy
	if script.Policy != "" {
		p, err := contextmap.ParsePolicy(script.Policy)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	start := time.Now()
	logger := s.logger.With(zap.String("script", script.Name))
	m := s.metricsFor(script.Name)

	opts := []contextmap.Option{contextmap.WithLogger(logger)}
	if m != nil {
		opts = append(opts, contextmap.WithMetrics(m))
	}
	index := contextmap.New[string, int64, string](opts...)

	report := &model.Report{
		Script:   script.Name,
		Source:   script.Source,
		Checksum: util.FormatChecksum(script.Checksum),
		Steps:    make([]model.StepResult, 0, len(script.Steps)),
	}

	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			s.finish(report, index, m, logger, start)
			return report, fmt.Errorf("replay of %s interrupted at step %d: %w", script.Name, i, err)
		}

		res := runStep(index, policy, i, step)
		report.Steps = append(report.Steps, res)
		if m != nil {
			m.RecordReplayStep(string(step.Op), passLabel(res.Passed))
		}

		if res.Passed {
			report.Passed++
			continue
		}
		report.Failed++
		logger.Debug("Step failed expectation",
			zap.Int("step", i),
			zap.String("outcome", res.Outcome),
			zap.String("expected", res.Expected))
		if s.config.StopOnError {
			report.Aborted = i < len(script.Steps)-1
			break
		}
	}

	s.finish(report, index, m, logger, start)
	return report, nil
}

func (s *ReplayService) finish(report *model.Report, index *Index, m *metrics.Metrics, logger *zap.Logger, start time.Time) {
	report.Keys = index.Keys()
	report.OwnedValues = index.OwnedValues()

	duration := time.Since(start)
	if m != nil {
		m.RecordReplayScript(report.OK(), duration.Seconds())
	}
	logger.Info("Script replayed",
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Bool("aborted", report.Aborted),
		zap.Duration("duration", duration))
}

// runStep applies one step to index and checks its expectation. Writes
// without an explicit expectation are expected to succeed; reads without one
// are only recorded.
func runStep(index *Index, policy contextmap.Policy, i int, step model.Step) model.StepResult {
	res := model.StepResult{
		Index:    i,
		Op:       step.Op,
		Key:      step.Key,
		Context:  step.Context,
		Value:    step.Value,
		Expected: step.Expect,
	}

	if step.Op == model.OperationTypeGet {
		v, state := index.Lookup(step.Key, step.Context)
		res.Value = v
		res.Outcome = state.String()
		res.Passed = step.Expect == "" || (res.Outcome == step.Expect && (step.Value == "" || v == step.Value))
		if !res.Passed && step.Value != "" {
			res.Expected = fmt.Sprintf("%s %s", step.Expect, step.Value)
		}
		return res
	}

	var err error
	switch step.Op {
	case model.OperationTypeOverwrite:
		err = index.UpdateOverwrite(step.Key, step.Context, step.Value)
	case model.OperationTypeNoOverwrite:
		err = index.UpdateNoOverwrite(step.Key, step.Context, step.Value)
	case model.OperationTypeUpdate:
		err = index.Update(policy, step.Key, step.Context, step.Value)
	case model.OperationTypeRetract:
		err = index.Retract(step.Key, step.Context)
	default:
		err = errors.InvalidArgument(fmt.Sprintf("unknown op %q", step.Op), nil)
	}

	if res.Expected == "" {
		res.Expected = model.OutcomeOK
	}
	res.Outcome = errors.GetCode(err).String()
	res.Status = errors.StatusOf(err).Code().String()
	res.Passed = res.Outcome == res.Expected
	if err != nil && !res.Passed {
		res.Detail = err.Error()
	}
	return res
}

func passLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

// ReplayAll replays scripts concurrently on a worker pool. Reports and
// errors are returned in script order.
func (s *ReplayService) ReplayAll(ctx context.Context, scripts []*model.Script) ([]*model.Report, []error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	pool := workerpool.New(&workerpool.Config{
		Name:       "replay",
		MaxWorkers: s.config.Workers,
		QueueSize:  s.config.QueueSize,
		Logger:     s.logger,
	})
	defer pool.Stop(5 * time.Second)

	reports := make([]*model.Report, len(scripts))
	errs := make([]error, len(scripts))

	// Metrics are labelled by script name, so a name may only run once
	seen := make(map[string]int, len(scripts))
	jobs := make([]workerpool.Job, 0, len(scripts))
	slots := make([]int, 0, len(scripts))
	for i, script := range scripts {
		if first, dup := seen[script.Name]; dup && script.Name != "" {
			errs[i] = errors.InvalidArgument(
				fmt.Sprintf("script %s in %s: name already used by %s", script.Name, script.Source, scripts[first].Source), nil)
			continue
		}
		seen[script.Name] = i

		i, script := i, script
		jobs = append(jobs, workerpool.Job{
			ID: script.Name,
			Fn: func(ctx context.Context) error {
				report, err := s.Replay(ctx, script)
				reports[i] = report
				return err
			},
		})
		slots = append(slots, i)
	}

	for j, err := range pool.Run(ctx, jobs) {
		errs[slots[j]] = err
	}

	stats := pool.Stats()
	s.logger.Info("Replay finished",
		zap.Int("scripts", len(scripts)),
		zap.Uint64("succeeded", stats.Completed),
		zap.Uint64("failed", stats.Failed),
		zap.Uint64("rejected", stats.Rejected),
		zap.Float64("success_rate", stats.SuccessRate()))

	return reports, errs
}
