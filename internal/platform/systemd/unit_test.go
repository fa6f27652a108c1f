package systemd

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestServiceUnit(t *testing.T) {
	for in, want := range map[string]UnitName{
		"celeryd":           "celeryd.service",
		"crx-mount.service": "crx-mount.service",
		"foo.socket":        "foo.socket",
	} {
		if got := ServiceUnit(in); got != want {
			t.Errorf("ServiceUnit(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnitPredicates(t *testing.T) {
	u := Unit{LoadState: "loaded", State: UnitStateActivating, UnitFileState: "enabled"}
	if !u.Loaded() || !u.Active() || !u.Enabled() || u.Generated() {
		t.Errorf("predicates wrong for %+v", u)
	}
	gen := Unit{LoadState: "loaded", State: UnitStateActive, UnitFileState: "generated"}
	if !gen.Generated() || gen.Enabled() {
		t.Errorf("predicates wrong for %+v", gen)
	}
	missing := Unit{LoadState: LoadStateNotFound, State: UnitStateInactive}
	if missing.Loaded() || missing.Active() || missing.Enabled() {
		t.Errorf("predicates wrong for %+v", missing)
	}
}

func TestFakeSystemd_ReloadLoadsPendingUnits(t *testing.T) {
	ctx := context.Background()
	f := NewFakeSystemd()
	f.AddUnitFile("celeryd.service")

	if err := f.StartUnit(ctx, "celeryd.service"); err == nil {
		t.Fatal("start before reload should fail")
	}
	if err := f.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.StartUnit(ctx, "celeryd.service"); err != nil {
		t.Fatalf("start after reload: %v", err)
	}
	if err := f.EnableUnits(ctx, []string{"celeryd.service"}); err != nil {
		t.Fatal(err)
	}

	u, _ := f.GetUnit(ctx, "celeryd.service")
	if !u.Active() || !u.Enabled() {
		t.Errorf("unit = %+v", u)
	}

	want := []string{"start celeryd.service", "reload", "start celeryd.service", "enable celeryd.service"}
	if diff := cmp.Diff(want, f.Calls()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestFakeSystemd_GeneratedUnitsCannotBeEnabled(t *testing.T) {
	ctx := context.Background()
	f := NewFakeSystemd()
	f.AddInitScript("celeryd.service")
	if err := f.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.EnableUnits(ctx, []string{"celeryd.service"}); err == nil {
		t.Error("enabling a generated unit should fail")
	}
	u, _ := f.GetUnit(ctx, "celeryd.service")
	if !u.Loaded() || !u.Generated() {
		t.Errorf("unit = %+v", u)
	}
}

func TestFakeSystemd_Fail(t *testing.T) {
	f := NewFakeSystemd()
	boom := errors.New("boom")
	f.Fail["reload"] = boom
	if err := f.Reload(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Reload err = %v", err)
	}
}
