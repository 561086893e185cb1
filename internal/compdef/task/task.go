// Package task runs the spreadsheet to component-definition pipeline: read
// inputs, reconcile, lint, then write. Every check happens before the write,
// so a failed run leaves the previous output untouched. Run records written
// after the document only produce warnings when they fail.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"time"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sigcomply/compdef-cli/internal/compdef/oscalio"
	"github.com/sigcomply/compdef-cli/internal/compdef/reconcile"
	"github.com/sigcomply/compdef-cli/internal/compdef/sheet"
	"github.com/sigcomply/compdef-cli/internal/core/config"
	"github.com/sigcomply/compdef-cli/internal/core/digest"
	"github.com/sigcomply/compdef-cli/internal/core/result"
	"github.com/sigcomply/compdef-cli/internal/core/storage"
	"github.com/sigcomply/compdef-cli/internal/data_sources/source"
	"github.com/sigcomply/compdef-cli/internal/policy"
)

// ErrPolicyViolations is returned when linting fails and the configuration
// asks for violations to fail the run.
var ErrPolicyViolations = errors.New("component definition failed policy checks")

// Options configures a generate run.
type Options struct {
	Config   *config.Config
	Simulate bool
	Logger   *zap.Logger

	// Reader resolves input references. Defaults to a source.Reader using
	// the configured GitHub token and AWS region.
	Reader Reader

	// Backend receives the output. Defaults to the configured backend rooted
	// at the task's output directory.
	Backend storage.Backend

	// Reconcile carries clock and UUID overrides for the reconciliation.
	Reconcile reconcile.Options
}

// Reader resolves an input reference to its content.
type Reader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

// Generate runs the task and reports its outcome. The returned report is
// always non-nil; err is the cause of a FAILURE outcome.
func Generate(ctx context.Context, opts Options) (*result.RunReport, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	report := &result.RunReport{
		RunID:       uuid.New().String(),
		Task:        cfg.Task.Name,
		Timestamp:   time.Now().UTC(),
		Spreadsheet: cfg.Task.CSVFile,
		Existing:    cfg.Task.ComponentDefinition,
	}

	err := run(ctx, &opts, log, report)
	report.Outcome = result.OutcomeFor(err, opts.Simulate)
	if err != nil {
		report.Error = err.Error()
		log.Debug("task failed", zap.String("task", report.Task), zap.Error(err))
	}
	log.Info("task finished",
		zap.String("task", report.Task),
		zap.String("outcome", string(report.Outcome)),
		zap.Int("changes", report.Changes.Total()))
	return report, err
}

func run(ctx context.Context, opts *Options, log *zap.Logger, report *result.RunReport) error {
	cfg := opts.Config
	if err := cfg.ValidateTask(); err != nil {
		return err
	}

	reader := opts.Reader
	if reader == nil {
		reader = source.NewReader().WithToken(cfg.GitHubToken).WithRegion(cfg.Storage.Region)
	}

	rows, err := loadRows(ctx, reader, cfg.Task.CSVFile)
	if err != nil {
		return err
	}
	report.Rows = len(rows)
	log.Debug("spreadsheet loaded", zap.String("path", cfg.Task.CSVFile), zap.Int("rows", len(rows)))

	existing, err := loadExisting(ctx, reader, cfg.Task.ComponentDefinition)
	if err != nil {
		return err
	}

	rOpts := opts.Reconcile
	rOpts.Title = cfg.Task.Title
	rOpts.Version = cfg.Task.Version
	rOpts.UserNamespace = cfg.Task.UserNamespace
	rOpts.ClassColumns = cfg.Task.ClassColumns
	rOpts.Logger = log

	cd, changes, err := reconcile.Reconcile(existing, rows, rOpts)
	if err != nil {
		return &result.ProcessingError{Stage: "reconcile", Err: err}
	}
	report.Changes = *changes

	data, err := oscalio.Encode(cd)
	if err != nil {
		return &result.ProcessingError{Stage: "encode", Err: err}
	}
	canonical, err := digest.CanonicalizeJSON(data)
	if err != nil {
		return &result.ProcessingError{Stage: "encode", Err: err}
	}
	report.Digest = digest.Bytes(canonical)

	if cfg.LintEnabled {
		if err := lint(ctx, cfg, cd, report); err != nil {
			return err
		}
	}

	if opts.Simulate {
		log.Debug("simulated run, nothing written")
		return nil
	}

	return write(ctx, opts, log, data, report)
}

func loadRows(ctx context.Context, reader Reader, ref string) ([]sheet.Row, error) {
	format, err := sheet.FormatFromPath(source.Name(ref))
	if err != nil {
		return nil, &result.ConfigError{Message: err.Error()}
	}
	data, err := reader.Read(ctx, ref)
	if err != nil {
		return nil, &result.ProcessingError{Stage: "sheet", Err: err}
	}
	s, err := sheet.Parse(data, format)
	if err != nil {
		return nil, &result.ProcessingError{Stage: "sheet", Err: err}
	}
	rows, err := s.Rows()
	if err != nil {
		return nil, &result.ProcessingError{Stage: "sheet", Err: err}
	}
	return rows, nil
}

func loadExisting(ctx context.Context, reader Reader, ref string) (*oscal.ComponentDefinition, error) {
	if ref == "" {
		return nil, nil
	}
	data, err := reader.Read(ctx, ref)
	if err != nil {
		return nil, &result.ProcessingError{Stage: "component-definition", Err: err}
	}
	cd, err := oscalio.Decode(data)
	if err != nil {
		return nil, &result.ProcessingError{Stage: "component-definition", Err: err}
	}
	return cd, nil
}

func lint(ctx context.Context, cfg *config.Config, cd *oscal.ComponentDefinition, report *result.RunReport) error {
	packs, err := policy.Resolve(cfg.LintPacks, cfg.PolicyDir)
	if err != nil {
		return &result.ConfigError{Message: err.Error()}
	}
	results, err := policy.Lint(ctx, cd, packs...)
	if err != nil {
		return &result.ProcessingError{Stage: "lint", Err: err}
	}
	report.PolicyResults = results

	if cfg.FailOnViolation && result.Summarize(results).HasFailures() {
		return &result.ProcessingError{Stage: "lint", Err: ErrPolicyViolations}
	}
	return nil
}

func write(ctx context.Context, opts *Options, log *zap.Logger, data []byte, report *result.RunReport) error {
	cfg := opts.Config

	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = storage.NewBackend(backendConfig(cfg))
		if err != nil {
			return &result.ConfigError{Message: err.Error()}
		}
	}
	if err := backend.Init(ctx); err != nil {
		return &result.ProcessingError{Stage: "output", Err: err}
	}
	defer backend.Close() //nolint:errcheck // backends hold no buffered state

	builder := storage.NewManifestBuilder(backend, cfg.Task.Name).WithRunID(report.RunID)
	item, err := builder.StoreDocument(ctx, cfg.Task.OutputName, data, cfg.Task.Overwrite())
	if err != nil {
		return &result.ProcessingError{Stage: "output", Err: err}
	}
	report.OutputPath = item.Path
	log.Debug("document written", zap.String("backend", backend.Name()), zap.String("path", item.Path))

	if !cfg.Storage.Records {
		return nil
	}

	// The document is committed at this point. A failed record write is
	// reported but does not turn the run into a failure.
	if err := writeRecords(ctx, backend, builder, report); err != nil {
		log.Warn("run records not written", zap.String("backend", backend.Name()), zap.Error(err))
		report.Warnings = append(report.Warnings, "run records not written: "+err.Error())
	}
	return nil
}

// writeRecords stores report.json and the run manifest under the run path.
func writeRecords(ctx context.Context, backend storage.Backend, builder *storage.ManifestBuilder, report *result.RunReport) error {
	builder.SetChanges(&report.Changes)
	reportData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	reportItem, err := backend.Put(ctx, builder.RunPath().ReportPath(), reportData, &storage.PutOptions{
		ContentType: "application/json",
		Overwrite:   true,
	})
	if err != nil {
		return err
	}
	builder.AddItem(reportItem)

	_, err = builder.Store(ctx)
	return err
}

// backendConfig roots the configured backend at the task's output directory.
func backendConfig(cfg *config.Config) *storage.Config {
	sc := &storage.Config{Backend: cfg.Storage.Backend}
	switch cfg.Storage.Backend {
	case "s3":
		sc.S3 = &storage.S3Config{
			Bucket: cfg.Storage.Bucket,
			Region: cfg.Storage.Region,
			Prefix: path.Join(cfg.Storage.Prefix, cfg.Task.OutputDir),
		}
	default:
		sc.Local = &storage.LocalConfig{Path: cfg.Task.OutputDir}
	}
	return sc
}
