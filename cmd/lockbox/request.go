package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/TheMichaelB/lockbox/internal/models"
)

// requestInfo describes this invocation for the audit log.
func requestInfo() models.RequestInfo {
	return models.RequestInfo{
		SourceIP:  sourceIP(),
		UserAgent: "lockbox/" + version,
	}
}

// sourceIP is the SSH client's address for remote sessions, otherwise
// the local outbound address.
func sourceIP() string {
	// SSH_CONNECTION: client_ip client_port server_ip server_port
	if f := strings.Fields(os.Getenv("SSH_CONNECTION")); len(f) >= 2 {
		return models.ClientIP("", net.JoinHostPort(f[0], f[1]))
	}
	return localIP()
}

// localIP returns the address of the interface used for outbound traffic.
// Dialing UDP sends no packets.
func localIP() string {
	conn, err := net.Dial("udp", "192.0.2.1:9")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP != nil {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // New line after password

	if err != nil {
		return "", err
	}

	return string(password), nil
}
