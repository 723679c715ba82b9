package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/intent-gate/intentgate/internal/domain/firewall"
	"github.com/intent-gate/intentgate/internal/domain/intent"
)

// LoaderService builds fresh rule stores from the rule directories. It
// runs off the dispatch path: all I/O and parsing happen against a store
// the dispatcher cannot see yet.
type LoaderService struct {
	writableDir  string
	readOnlyDirs []string
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
}

// LoadReport summarizes one load pass for logs and the validate command.
type LoadReport struct {
	// Files is how many rule files were read.
	Files int
	// FileErrors are structural failures that discarded whole files.
	FileErrors []error
	// RuleErrors are per-rule failures; sibling rules were kept.
	RuleErrors []error
	// Counts are the indexed entries per kind after installation.
	Counts map[intent.Kind]int
}

// NewLoaderService creates a loader over one writable directory and an
// ordered list of read-only directories.
func NewLoaderService(writableDir string, readOnlyDirs []string, logger *slog.Logger, metrics *Metrics) *LoaderService {
	return &LoaderService{
		writableDir:  writableDir,
		readOnlyDirs: readOnlyDirs,
		logger:       logger,
		metrics:      metrics,
		tracer:       otel.Tracer("intentgate/loader"),
	}
}

// Load enumerates every *.xml file under the rule directories, parses
// them, and assembles a fresh store. Failures never abort the pass: a bad
// file is discarded, a bad rule is discarded, and everything else loads.
// File order within a directory is stable but carries no semantics; rules
// are OR-combined.
func (l *LoaderService) Load(ctx context.Context) (*firewall.Store, *LoadReport) {
	_, span := l.tracer.Start(ctx, "rules.reload")
	defer span.End()

	store := firewall.NewStore()
	report := &LoadReport{}

	dirs := append([]string{l.writableDir}, l.readOnlyDirs...)
	for _, dir := range dirs {
		for _, path := range listRuleFiles(dir) {
			l.loadFile(path, store, report)
		}
	}

	report.Counts = store.Counts()
	l.logger.Info("read new rules",
		"activity", report.Counts[intent.KindActivity],
		"broadcast", report.Counts[intent.KindBroadcast],
		"service", report.Counts[intent.KindService],
		"provider", report.Counts[intent.KindProvider],
		"package", report.Counts[intent.KindPackage],
	)

	if l.metrics != nil {
		l.metrics.ReloadsTotal.Inc()
		for kind, n := range report.Counts {
			l.metrics.RulesLoaded.WithLabelValues(kind.String()).Set(float64(n))
		}
	}
	span.SetAttributes(
		attribute.Int("rules.files", report.Files),
		attribute.Int("rules.file_errors", len(report.FileErrors)),
		attribute.Int("rules.rule_errors", len(report.RuleErrors)),
	)

	return store, report
}

// loadFile parses one rule file into the store.
func (l *LoaderService) loadFile(path string, store *firewall.Store, report *LoadReport) {
	f, err := os.Open(path)
	if err != nil {
		// A file that vanished between listing and open simply has no
		// rules to contribute.
		if os.IsNotExist(err) {
			return
		}
		l.fileError(report, err)
		return
	}
	defer func() { _ = f.Close() }()

	report.Files++
	parsed, err := firewall.ParseRules(f, filepath.Base(path))
	if err != nil {
		l.fileError(report, err)
		return
	}

	for _, ruleErr := range parsed.RuleErrors {
		report.RuleErrors = append(report.RuleErrors, ruleErr)
		l.logger.Error("error reading an intent firewall rule", "error", ruleErr)
		if l.metrics != nil {
			l.metrics.RuleParseErrorsTotal.Inc()
		}
	}
	for _, rule := range parsed.Rules {
		store.Install(rule)
	}
}

func (l *LoaderService) fileError(report *LoadReport, err error) {
	report.FileErrors = append(report.FileErrors, err)
	l.logger.Error("error reading intent firewall rules", "error", err)
	if l.metrics != nil {
		l.metrics.ReloadFileErrors.Inc()
	}
}

// listRuleFiles returns the *.xml entries of dir, sorted by name. Only
// the ".xml" suffix counts, so tools can stage temporary files and rename
// them onto the suffix atomically. A missing or unreadable directory
// contributes nothing.
func listRuleFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".xml") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files
}
