// Package doctor inspects a nudge installation: configuration, ledger,
// audit log and updater command.
package doctor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nudge-project/nudge/internal/audit"
	"github.com/nudge-project/nudge/internal/ledger"
	"github.com/nudge-project/nudge/pkg/config"
	"github.com/nudge-project/nudge/pkg/errclass"
	"github.com/nudge-project/nudge/pkg/model"
)

const tmpPrefix = ".nudge-tmp-"

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	if f.Severity == "critical" {
		r.Healthy = false
	}
	r.Findings = append(r.Findings, f)
}

// Doctor performs installation health checks.
type Doctor struct {
	cfg      *config.Config
	stateDir string
}

// NewDoctor creates a new doctor.
func NewDoctor(cfg *config.Config, stateDir string) *Doctor {
	return &Doctor{cfg: cfg, stateDir: stateDir}
}

// Check runs all diagnostic checks. Strict mode also verifies the audit
// hash chain.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Healthy: true}

	if err := d.cfg.Validate(); err != nil {
		result.add(Finding{
			Category:    "config",
			Description: err.Error(),
			Severity:    "critical",
		})
	} else {
		d.checkLedger(result)
	}
	d.checkUpdater(result)
	if strict && d.cfg.Audit.Enabled {
		d.checkAudit(result)
	}
	d.checkOrphanTmp(result)

	return result, nil
}

func (d *Doctor) checkLedger(result *Result) {
	path := d.cfg.LedgerPath(d.stateDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return // nothing recorded yet
	}

	var (
		store ledger.Store
		err   error
	)
	if d.cfg.Ledger.Backend == config.BackendSQLite {
		store, err = ledger.OpenSQLite(path)
	} else {
		store, err = ledger.NewFileStore(path)
	}
	if err != nil {
		result.add(Finding{
			Category:    "ledger",
			Description: fmt.Sprintf("cannot open ledger: %v", err),
			Severity:    "error",
			Path:        path,
		})
		return
	}
	defer store.Close()

	if _, err := store.Load(model.TimelineKey(d.cfg.Deadline)); err != nil {
		f := Finding{
			Category:    "ledger",
			Description: fmt.Sprintf("cannot read ledger: %v", err),
			Severity:    "error",
			Path:        path,
		}
		if errors.Is(err, errclass.ErrLedgerCorrupt) {
			f.Description = fmt.Sprintf("ledger unreadable, deferrals are disabled until 'nudge ledger reset': %v", err)
			f.Severity = "critical"
		}
		result.add(f)
	}
}

func (d *Doctor) checkUpdater(result *Result) {
	cmd := d.cfg.Updater.Command
	if cmd == "" {
		result.add(Finding{
			Category:    "updater",
			Description: "no updater command configured; 'update' cannot launch anything",
			Severity:    "warning",
		})
		return
	}
	if _, err := exec.LookPath(cmd); err != nil {
		result.add(Finding{
			Category:    "updater",
			Description: fmt.Sprintf("updater command not found: %v", err),
			Severity:    "warning",
			Path:        cmd,
		})
	}
}

func (d *Doctor) checkAudit(result *Result) {
	log := audit.NewFileAppender(d.cfg.AuditPath(d.stateDir))
	n, err := log.Verify()
	if err == nil {
		return
	}
	f := Finding{
		Category:    "audit",
		Description: fmt.Sprintf("cannot verify audit log: %v", err),
		Severity:    "error",
		Path:        log.Path(),
	}
	if errors.Is(err, errclass.ErrAuditChainBroken) {
		f.Description = fmt.Sprintf("audit chain broken after %d valid records: %v", n, err)
		f.Severity = "critical"
	}
	result.add(f)
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	dirs := []string{d.stateDir}
	if p := d.cfg.LedgerPath(d.stateDir); d.cfg.Ledger.Backend != config.BackendSQLite && p != d.stateDir {
		dirs = append(dirs, p)
	}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), tmpPrefix) {
				continue
			}
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", entry.Name()),
				Severity:    "info",
				Path:        filepath.Join(dir, entry.Name()),
			})
		}
	}
}
