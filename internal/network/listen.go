package network

import (
	"net"
	"syscall"
	"time"
)

// ReuseAddrListenConfig returns the ListenConfig used for the game and admin
// ports: SO_REUSEADDR is set before bind where the platform supports it, so
// a restarted server can rebind while old sockets sit in TIME_WAIT.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{
		KeepAlive: 30 * time.Second,
		Control:   reuseAddrControl,
	}
}

func reuseAddrControl(_, _ string, rc syscall.RawConn) error {
	var sockErr error
	if err := rc.Control(func(fd uintptr) { sockErr = setReuseAddr(fd) }); err != nil {
		return err
	}
	return sockErr
}
