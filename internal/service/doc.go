// Package service reconciles init-script managed daemons (the Celery worker
// and beat scheduler, and the mount's own systemd unit).
//
// Apply follows one fixed sequence:
//
//  1. sample whether the service manager already knows the service,
//  2. install every file (script, settings, unit file) idempotently,
//  3. if anything changed and the unit cache should be reloaded, reload it,
//  4. restart a pre-existing service once if files or sources changed;
//     start and enable a new one; otherwise only ensure it is running.
//
// A failed step aborts the sequence, so a restart never follows a failed
// reload.
package service
