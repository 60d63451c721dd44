package config

import (
	"fmt"
	"os"
)

// SocketPath returns the daemon socket path for the effective user: one
// fixed path per uid, so separate users get separate daemons and the 0600
// socket mode is the whole authorization story.
func SocketPath() string {
	if p := os.Getenv("SNAPMARK_SOCKET"); p != "" {
		return p
	}
	return fmt.Sprintf("/tmp/snapmark-%d.sock", os.Geteuid())
}
