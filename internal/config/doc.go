// Package config loads, normalizes, and validates direktori configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the environment variables the
// worker fleet has always been deployed with (PGHOST and friends,
// DATABASE_URL, NUM_WORKERS, WORKER_NAME, BASE_URL, STORAGE_STATE, HEADLESS,
// TIMEOUT_MS, LOG_LEVEL). The Config type centralizes every knob the worker
// pool and CLI need so both discover the database, browser session, and
// logging settings in one pass.
package config
