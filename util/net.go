package util

import (
	"net"
)

// IsIPv4 reports whether ip is an IPv4 address, IPv4-mapped form included
func IsIPv4(ip net.IP) bool {
	return len(ip) > 0 && ip.To4() != nil
}

// InterfaceMTU returns the MTU of the named interface, 0 if there is none
func InterfaceMTU(name string) int {
	infs, err := net.Interfaces()
	if err != nil {
		return 0
	}
	for _, i := range infs {
		if i.Name == name {
			return i.MTU
		}
	}
	return 0
}
