package mount

import (
	"testing"
	"time"

	"github.com/mbrock/hostkeep/internal/config"
)

func TestUnitFile(t *testing.T) {
	cfg := config.Default().Mount
	cfg.Unit = "crx-mount"
	cfg.Description = "Mount storage:/srv/crx at /mnt/crx"
	cfg.User = "dbling"
	cfg.Restart.Delay = config.Duration{Duration: 5 * time.Second}

	f, err := UnitFile(cfg, "/usr/local/bin/hostkeep", "/etc/hostkeep/hostkeep.toml")
	if err != nil {
		t.Fatal(err)
	}
	if f.Path != "/etc/systemd/system/crx-mount.service" || f.Mode != 0o644 {
		t.Errorf("file = %s %o", f.Path, f.Mode)
	}

	want := `[Unit]
Description=Mount storage:/srv/crx at /mnt/crx
After=network-online.target
Requires=network-online.target

[Service]
Type=simple
User=dbling
ExecStartPre=-/usr/local/bin/hostkeep --config /etc/hostkeep/hostkeep.toml mount prepare
ExecStart=/usr/local/bin/hostkeep --config /etc/hostkeep/hostkeep.toml mount run
ExecStop=/usr/local/bin/hostkeep --config /etc/hostkeep/hostkeep.toml mount stop
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`
	if got := string(f.Content); got != want {
		t.Errorf("unit content:\n%s\nwant:\n%s", got, want)
	}
}

func TestExecLineQuotes(t *testing.T) {
	got := execLine("/opt/host keep/bin", "--config", `/etc/a"b.toml`, "mount", "run")
	want := `"/opt/host keep/bin" --config "/etc/a\"b.toml" mount run`
	if got != want {
		t.Errorf("execLine = %s, want %s", got, want)
	}
}

func TestRestartSec(t *testing.T) {
	for d, want := range map[time.Duration]string{
		0:                       "1",
		300 * time.Millisecond:  "1",
		1500 * time.Millisecond: "2",
		time.Minute:             "60",
	} {
		if got := restartSec(d); got != want {
			t.Errorf("restartSec(%v) = %s, want %s", d, got, want)
		}
	}
}
