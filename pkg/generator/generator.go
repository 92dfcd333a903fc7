// Package generator produces the declarative boot plan that wires the bless
// daemon into the booted system's service supervisor. The plan is pure
// data: building it has no side effects, and the core never manipulates
// host service state directly.
package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config are the paths baked into the generated plan.
type Config struct {
	// BlessdPath is the bless daemon executable.
	BlessdPath string
	// MarkerPath is the launch handoff marker; its presence triggers the
	// bless daemon.
	MarkerPath string
	// SignalPath is the boot-good health signal file.
	SignalPath string
	// LedgerPath is the attempt ledger file.
	LedgerPath string
}

// Unit is one generated service definition.
type Unit struct {
	Name     string
	Contents string
}

// Plan is the full set of ordering and trigger rules for one boot.
type Plan struct {
	Units []Unit
}

// BlessUnitName is the service that runs the bless daemon.
const BlessUnitName = "tinyboot-bless.service"

// BuildPlan constructs the boot plan:
//   - the bless daemon starts only when this boot was launched by tinyboot
//     (the handoff marker exists) and starts at most once per boot;
//   - it is ordered strictly before the shutdown sequence, and shutdown
//     conflicts with it, so a bless commit in flight completes before the
//     system goes down and no commit can start once shutdown has begun.
func BuildPlan(cfg Config) Plan {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	b.WriteString("Description=Commit boot outcome to the tinyboot attempt ledger\n")
	fmt.Fprintf(&b, "ConditionPathExists=%s\n", cfg.MarkerPath)
	b.WriteString("DefaultDependencies=no\n")
	b.WriteString("After=local-fs.target\n")
	b.WriteString("Before=shutdown.target\n")
	b.WriteString("Conflicts=shutdown.target\n")
	b.WriteString("\n")
	b.WriteString("[Service]\n")
	b.WriteString("Type=oneshot\n")
	b.WriteString("RemainAfterExit=yes\n")
	b.WriteString("Restart=no\n")
	fmt.Fprintf(&b, "ExecStart=%s -ledger %s -marker %s -signal %s\n",
		cfg.BlessdPath, cfg.LedgerPath, cfg.MarkerPath, cfg.SignalPath)
	b.WriteString("\n")
	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")

	return Plan{Units: []Unit{{Name: BlessUnitName, Contents: b.String()}}}
}

// Write renders the plan into dir, one file per unit, for the host's
// service supervisor to consume.
func (p Plan) Write(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, u := range p.Units {
		if err := os.WriteFile(filepath.Join(dir, u.Name), []byte(u.Contents), 0644); err != nil {
			return err
		}
	}
	return nil
}
