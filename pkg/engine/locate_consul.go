//go:build consul

package engine

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

// LocateEnabled returns true when the consul tag is on.
func LocateEnabled() bool { return true }

// Locate resolves the controller base URL from a healthy Consul service
// instance (requires build tag consul).
func Locate(consulAddr, service string) (string, error) {
	cfg := consulapi.DefaultConfig()
	if consulAddr != "" {
		cfg.Address = consulAddr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return "", err
	}
	entries, _, err := cli.Health().Service(service, "", true, nil)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no healthy instance of %q in consul", service)
	}
	svc := entries[0].Service
	host := svc.Address
	if host == "" {
		host = entries[0].Node.Address
	}
	return fmt.Sprintf("http://%s:%d", host, svc.Port), nil
}
