package main

import (
	"net"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/homie/pkg/config"
)

// loadConfig resolves --config (falling back to ~/.homie/config.yaml) and
// loads it, applying defaults for anything the file omits.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)
	if path == "" {
		home, err := config.HomeDir()
		if err != nil {
			home = config.Default().DataDir
		}
		path = filepath.Join(home, "config.yaml")
	}
	return config.Load(path)
}

// localIP returns this host's outbound IPv4 address by asking the kernel
// which local address it would use to reach the public internet; no
// packet is actually sent.
func localIP() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
