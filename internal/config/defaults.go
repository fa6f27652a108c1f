package config

import "time"

// Default returns the configuration used before any file is decoded over it.
// Nothing is enabled by default.
func Default() Config {
	return Config{
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Backend: Backend{
			Kind:            "sysv",
			ServiceCommand:  "service",
			UpdateRCCommand: "update-rc.d",
			ReloadCommand:   []string{"systemctl", "daemon-reload"},
		},
		Mount: Mount{
			Unit:             "remote-mount",
			UnitDir:          "/etc/systemd/system",
			Marker:           ".mounted",
			Options:          []string{"cache=no", "allow_other"},
			SSHFS:            "sshfs",
			Fusermount:       "fusermount",
			PreflightTimeout: Duration{10 * time.Second},
			After:            []string{"network-online.target"},
			Requires:         []string{"network-online.target"},
			WantedBy:         []string{"multi-user.target"},
			Restart: Restart{
				Policy:   "exponential",
				Delay:    Duration{time.Second},
				MaxDelay: Duration{time.Minute},
			},
		},
		Scheduler: Service{
			Name:            "celerybeat",
			Owner:           "root",
			Group:           "root",
			ReloadUnitCache: true,
			Celery: Celery{
				Bin:      "/usr/local/bin/celery",
				App:      "crawl",
				LogFile:  "/var/log/celery/beat.log",
				LogLevel: "INFO",
				PidFile:  "/var/run/celery/beat.pid",
				Schedule: "/var/run/celery/celerybeat-schedule",
				User:     "celery",
				Group:    "celery",
			},
		},
		Worker: Service{
			Name:            "celeryd",
			Owner:           "root",
			Group:           "root",
			ReloadUnitCache: true,
			Celery: Celery{
				Bin:        "/usr/local/bin/celery",
				App:        "crawl",
				Nodes:      []string{"worker1"},
				LogFile:    "/var/log/celery/%n%I.log",
				LogLevel:   "INFO",
				PidFile:    "/var/run/celery/%n.pid",
				User:       "celery",
				Group:      "celery",
				CreateDirs: true,
			},
		},
	}
}
