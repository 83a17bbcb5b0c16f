package transcribe

import "strings"

// PathMapper translates segment paths recorded by the capture host into paths
// visible on the worker host. Both prefixes empty means capture and
// transcription share a filesystem and paths pass through unchanged.
type PathMapper struct {
	RemotePrefix string
	LocalPrefix  string
}

// Resolve maps a capture-host path to a worker-local path
func (m PathMapper) Resolve(path string) string {
	if m.RemotePrefix == "" || m.LocalPrefix == "" {
		return path
	}
	if strings.HasPrefix(path, m.RemotePrefix) {
		return m.LocalPrefix + strings.TrimPrefix(path, m.RemotePrefix)
	}
	return path
}
