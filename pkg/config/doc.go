/*
Package config decodes the YAML configuration file consumed read-only
by the core at startup: group secret, discovery/worker ports, heartbeat
and peer-timeout intervals, and the resource caps enforced on every
sandboxed job container.

The file format itself is a thin collaborator; the struct it decodes
into, and its zero-dependency defaults, are what the rest of the
codebase relies on.

	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
		cfg.GroupSecret = mustGenerateSecret()
	}
*/
package config
