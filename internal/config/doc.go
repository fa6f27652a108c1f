// Package config loads, normalizes, and validates hostkeep configuration.
//
// It supplies defaults for a typical deployment (celeryd and
// celerybeat init scripts under /etc/init.d, their settings under
// /etc/default, an sshfs mount with caching disabled and allow_other),
// reads a TOML file over them, derives paths left empty from the service
// names, and rejects configurations that could not be applied.
package config
