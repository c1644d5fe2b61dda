// Package report persists assessment and fleet-summary records as JSON
// files under a configured output directory. The field set of the records is
// the compatibility contract; files are named by target/group plus a UTC
// timestamp, with a "latest" pointer rewritten on every run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"vmwarden/internal/models"
)

const (
	assessmentsDir = "assessments"
	fleetDir       = "fleet"
	stampLayout    = "20060102T150405Z"
)

// Writer owns the report output directory.
type Writer struct {
	root   string
	logger *zap.Logger
}

// NewWriter ensures the output directory layout exists.
func NewWriter(root string, logger *zap.Logger) (*Writer, error) {
	for _, sub := range []string{assessmentsDir, fleetDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("report: create %s: %w", sub, err)
		}
	}
	return &Writer{root: root, logger: logger}, nil
}

// WriteAssessment persists one assessment record and refreshes the target's
// latest pointer.
func (w *Writer) WriteAssessment(a *models.Assessment) error {
	stamp := a.Timestamp.UTC().Format(stampLayout)
	name := fmt.Sprintf("%s-%s.json", sanitize(a.Target), stamp)
	if err := w.writeJSON(filepath.Join(assessmentsDir, name), a); err != nil {
		return err
	}
	latest := fmt.Sprintf("%s-latest.json", sanitize(a.Target))
	return w.writeJSON(filepath.Join(assessmentsDir, latest), a)
}

// WriteSummary persists one fleet summary and refreshes the group's latest
// pointer.
func (w *Writer) WriteSummary(s *models.FleetSummary) error {
	stamp := s.Timestamp.UTC().Format(stampLayout)
	name := fmt.Sprintf("%s-%s.json", sanitize(s.ResourceGroup), stamp)
	if err := w.writeJSON(filepath.Join(fleetDir, name), s); err != nil {
		return err
	}
	latest := fmt.Sprintf("%s-latest.json", sanitize(s.ResourceGroup))
	return w.writeJSON(filepath.Join(fleetDir, latest), s)
}

// LatestAssessment reads the most recent persisted assessment for a target.
func (w *Writer) LatestAssessment(target string) (*models.Assessment, error) {
	path := filepath.Join(w.root, assessmentsDir, fmt.Sprintf("%s-latest.json", sanitize(target)))
	var a models.Assessment
	if err := readJSON(path, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// LatestSummary reads the most recent persisted fleet summary for a group.
func (w *Writer) LatestSummary(resourceGroup string) (*models.FleetSummary, error) {
	path := filepath.Join(w.root, fleetDir, fmt.Sprintf("%s-latest.json", sanitize(resourceGroup)))
	var s models.FleetSummary
	if err := readJSON(path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (w *Writer) writeJSON(rel string, v any) error {
	path := filepath.Join(w.root, rel)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("report: encode %s: %w", rel, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", rel, err)
	}
	if w.logger != nil {
		w.logger.Debug("report written", zap.String("path", path))
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// sanitize keeps report filenames shell-safe regardless of what the
// provider lets people call their VMs.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return fmt.Sprintf("unnamed-%d", time.Now().Unix())
	}
	return b.String()
}
