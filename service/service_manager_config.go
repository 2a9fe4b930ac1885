package service

import "fmt"

// ManagerConfig holds configuration for the Manager HTTP server that
// exposes pipeline health, component status and the snapshot API.
type ManagerConfig struct {
	HTTPPort   int      `json:"http_port"`
	ServerInfo InfoSpec `json:"server_info"`
	SwaggerUI  bool     `json:"swagger_ui"`
}

// Validate rejects an out-of-range port. ServerInfo fields may be empty;
// defaults are applied at startup.
func (c ManagerConfig) Validate() error {
	if c.HTTPPort >= 0 && c.HTTPPort <= 65535 {
		return nil
	}
	return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
}
