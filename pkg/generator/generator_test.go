package generator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		BlessdPath: "/sbin/blessd",
		MarkerPath: "/var/lib/tinyboot/last-launch.json",
		SignalPath: "/run/tinyboot/boot-good",
		LedgerPath: "/var/lib/tinyboot/ledger.json",
	}
}

func TestBuildPlanOrdering(t *testing.T) {
	plan := BuildPlan(testConfig())
	require.Len(t, plan.Units, 1)
	unit := plan.Units[0]
	require.Equal(t, BlessUnitName, unit.Name)

	// bless must complete before shutdown can proceed, and shutdown must
	// prevent a new bless from starting
	require.Contains(t, unit.Contents, "Before=shutdown.target")
	require.Contains(t, unit.Contents, "Conflicts=shutdown.target")
}

func TestBuildPlanTriggersOncePerBoot(t *testing.T) {
	unit := BuildPlan(testConfig()).Units[0]

	// only runs on boots that tinyboot launched
	require.Contains(t, unit.Contents, "ConditionPathExists=/var/lib/tinyboot/last-launch.json")
	// oneshot + RemainAfterExit keeps the unit from being started twice
	require.Contains(t, unit.Contents, "Type=oneshot")
	require.Contains(t, unit.Contents, "RemainAfterExit=yes")
	require.Contains(t, unit.Contents, "Restart=no")
}

func TestBuildPlanIsPure(t *testing.T) {
	a := BuildPlan(testConfig())
	b := BuildPlan(testConfig())
	require.Equal(t, a, b)
}

func TestWritePlan(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generator.early")
	plan := BuildPlan(testConfig())
	require.NoError(t, plan.Write(dir))

	data, err := os.ReadFile(filepath.Join(dir, BlessUnitName))
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "ExecStart=/sbin/blessd"))
}
