//go:build !linux && !darwin

package rtp

import "net"

// setDSCP на прочих платформах не поддерживается и молча пропускается
func setDSCP(conn *net.UDPConn, dscp int) error {
	return nil
}

// setVoiceSocketOptions на прочих платформах ничего не делает
func setVoiceSocketOptions(conn *net.UDPConn) error {
	return nil
}
