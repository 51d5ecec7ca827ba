//go:build linux

package rtp

import (
	"net"

	"golang.org/x/sys/unix"
)

// setDSCP устанавливает DSCP-маркировку исходящих пакетов для QoS.
// DSCP занимает старшие 6 бит поля TOS/Traffic Class.
func setDSCP(conn *net.UDPConn, dscp int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	tos := dscp << 2

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		// IPv4: IP_TOS. В контейнерах установка может быть запрещена,
		// это не препятствует работе транспорта.
		if serr := unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos); serr != nil {
			sockErr = nil
			return
		}
		// IPv6: IPV6_TCLASS, ошибка на чисто IPv4 сокете ожидаема
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// setVoiceSocketOptions применяет Linux-специфичные настройки сокета
// для голосового трафика: приоритет и busy polling.
func setVoiceSocketOptions(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	return raw.Control(func(fd uintptr) {
		// Приоритет 6 соответствует интерактивному аудио
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PRIORITY, 6)

		// SO_BUSY_POLL снижает латентность приема (ядро 3.11+),
		// отсутствие поддержки не является ошибкой
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BUSY_POLL, 50)
	})
}
