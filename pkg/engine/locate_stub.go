//go:build !consul

package engine

import "fmt"

// LocateEnabled returns false when the consul build tag is not enabled.
func LocateEnabled() bool { return false }

// Locate is unavailable without the consul build tag.
func Locate(consulAddr, service string) (string, error) {
	return "", fmt.Errorf("consul locator requested (addr=%s service=%s) but consul build tag not enabled", consulAddr, service)
}
