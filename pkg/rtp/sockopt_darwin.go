//go:build darwin

package rtp

import (
	"net"

	"golang.org/x/sys/unix"
)

// setDSCP устанавливает DSCP-маркировку исходящих пакетов (macOS)
func setDSCP(conn *net.UDPConn, dscp int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	tos := dscp << 2

	return raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	})
}

// setVoiceSocketOptions применяет macOS-специфичные настройки сокета
func setVoiceSocketOptions(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	return raw.Control(func(fd uintptr) {
		// SO_NOSIGPIPE предотвращает SIGPIPE при записи в закрытый сокет
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
	})
}
