/*
Package config loads Corral's configuration from the environment, an optional
YAML config file, and built-in defaults.

Priority order is environment variables first, then the config file, then
defaults. Both CORRAL_-prefixed variables (CORRAL_EXECUTOR_WORKER_POOL_SIZE)
and the documented flat names (WORKER_POOL_SIZE, DEFAULT_UPDATE_PLAYBOOK,
NIGHT_RESTART_PLAYBOOK, DOCKER_UPDATE_PLAYBOOK,
TASK_PROGRESS_RETENTION_SECONDS, SUBPROCESS_KILL_GRACE_SECONDS, DATABASE_URL)
are honored, the flat name winning when both are set. A .env file in the
working directory is loaded when present.

	cfg, err := config.LoadConfig("")
	if err != nil {
		...
	}
	store, err := storage.NewGormStore(&cfg.Database)
*/
package config
