package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mbrock/hostkeep/internal/executor"
	"github.com/mbrock/hostkeep/internal/install"
	"github.com/mbrock/hostkeep/internal/platform/systemd"
)

func TestSystemdManager_NewUnitLoadsAfterReload(t *testing.T) {
	sd := systemd.NewFakeSystemd()
	sd.AddUnitFile("celeryd.service")
	m := NewSystemdManager(sd)

	u := Unit{
		Name: "celeryd",
		Files: []install.File{
			{Path: filepath.Join(t.TempDir(), "celeryd.service"), Content: []byte("[Service]\n"), Mode: 0o644},
		},
		ReloadUnitCache: true,
	}
	res, err := NewReconciler(m, nil).Apply(context.Background(), u)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Registered || !res.Started || res.Restarted {
		t.Errorf("result = %+v", res)
	}

	want := []string{"reload", "start celeryd.service", "enable celeryd.service"}
	if diff := cmp.Diff(want, sd.Calls()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}

	st, err := m.Status(context.Background(), "celeryd")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Registered || !st.Active || !st.Enabled {
		t.Errorf("status = %+v", st)
	}
}

func TestSystemdManager_UnknownUnitIsUnregistered(t *testing.T) {
	m := NewSystemdManager(systemd.NewFakeSystemd())
	ok, err := m.Registered(context.Background(), "celerybeat")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown unit reported as registered")
	}
}

// newSysVBacked returns a SystemdManager whose generated units are enabled
// through update-rc.d on a fake executor.
func newSysVBacked(t *testing.T) (*SystemdManager, *systemd.FakeSystemd, *executor.FakeExecutor, string) {
	t.Helper()
	sysv, fe, root := newSysV(t)
	sd := systemd.NewFakeSystemd()
	m := NewSystemdManager(sd)
	m.SysV = sysv
	return m, sd, fe, root
}

func TestSystemdManager_GeneratedUnitEnabledThroughUpdateRC(t *testing.T) {
	m, sd, fe, root := newSysVBacked(t)
	sd.AddInitScript("celeryd.service")

	u := Unit{
		Name: "celeryd",
		Files: []install.File{
			{Path: filepath.Join(root, "init.d", "celeryd"), Content: []byte("#!/bin/sh\n"), Mode: 0o755},
		},
		ReloadUnitCache: true,
	}
	res, err := NewReconciler(m, nil).Apply(context.Background(), u)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Started || !res.Enabled {
		t.Errorf("result = %+v", res)
	}

	want := []string{"reload", "start celeryd.service"}
	if diff := cmp.Diff(want, sd.Calls()); diff != "" {
		t.Errorf("systemd calls (-want +got):\n%s", diff)
	}
	wantCmds := [][]string{{"update-rc.d", "celeryd", "defaults"}}
	if diff := cmp.Diff(wantCmds, fe.CallsTo("update-rc.d")); diff != "" {
		t.Errorf("update-rc.d calls (-want +got):\n%s", diff)
	}
}

func TestSystemdManager_ChangedGeneratedUnitRestartsThenEnables(t *testing.T) {
	m, sd, fe, root := newSysVBacked(t)
	sd.AddUnit(systemd.Unit{Name: "celeryd.service", State: systemd.UnitStateActive, UnitFileState: "generated"})

	u := Unit{
		Name: "celeryd",
		Files: []install.File{
			{Path: filepath.Join(root, "default", "celeryd"), Content: []byte("CELERYD_NODES=\"w2\"\n"), Mode: 0o644},
		},
		ReloadUnitCache: true,
	}
	res, err := NewReconciler(m, nil).Apply(context.Background(), u)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Registered || !res.Restarted || !res.Enabled {
		t.Errorf("result = %+v", res)
	}
	if diff := cmp.Diff([]string{"reload", "restart celeryd.service"}, sd.Calls()); diff != "" {
		t.Errorf("systemd calls (-want +got):\n%s", diff)
	}
	if got := len(fe.CallsTo("update-rc.d")); got != 1 {
		t.Errorf("update-rc.d ran %d times, want 1", got)
	}
}

func TestSystemdManager_GeneratedUnitEnabledByStartLink(t *testing.T) {
	m, sd, _, root := newSysVBacked(t)
	sd.AddUnit(systemd.Unit{Name: "celerybeat.service", State: systemd.UnitStateActive, UnitFileState: "generated"})
	ctx := context.Background()

	st, err := m.Status(ctx, "celerybeat")
	if err != nil {
		t.Fatal(err)
	}
	if st.Enabled {
		t.Error("generated unit without rc start link reported enabled")
	}

	rc := filepath.Join(root, "rc2.d")
	if err := os.MkdirAll(rc, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("../init.d/celerybeat", filepath.Join(rc, "S01celerybeat")); err != nil {
		t.Fatal(err)
	}
	st, err = m.Status(ctx, "celerybeat")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Registered || !st.Active || !st.Enabled {
		t.Errorf("status = %+v", st)
	}
}

func TestSystemdManager_GeneratedUnitWithoutSysVFails(t *testing.T) {
	sd := systemd.NewFakeSystemd()
	sd.AddUnit(systemd.Unit{Name: "celeryd.service", UnitFileState: "generated"})
	m := NewSystemdManager(sd)
	if err := m.Enable(context.Background(), "celeryd"); err == nil {
		t.Error("Enable should fail without an update-rc fallback")
	}
	if calls := sd.Calls(); len(calls) != 0 {
		t.Errorf("EnableUnits called for a generated unit: %v", calls)
	}
}
