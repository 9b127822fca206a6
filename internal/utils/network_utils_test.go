package utils

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTunnelInterface(t *testing.T) {
	for _, name := range []string{"tun0", "wg0", "CloudflareWARP", "utun3", "ppp0"} {
		assert.True(t, isTunnelInterface(name), name)
	}
	for _, name := range []string{"eth0", "en0", "wlan0", "lo"} {
		assert.False(t, isTunnelInterface(name), name)
	}
}

func TestIsCGNAT(t *testing.T) {
	assert.True(t, isCGNAT(&net.IPNet{IP: net.ParseIP("100.100.1.2"), Mask: net.CIDRMask(32, 32)}))
	assert.True(t, isCGNAT(&net.IPAddr{IP: net.ParseIP("100.64.0.1")}))
	assert.False(t, isCGNAT(&net.IPNet{IP: net.ParseIP("192.168.1.10"), Mask: net.CIDRMask(24, 32)}))
	assert.False(t, isCGNAT(&net.IPAddr{IP: net.ParseIP("100.128.0.1")}))
	assert.False(t, isCGNAT(&net.UnixAddr{Name: "/tmp/sock"}))
}
