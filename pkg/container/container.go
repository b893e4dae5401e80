package container

import (
	"os"
	"strings"
)

// IsContainerised is a best effort guess from the usual Docker, containerd and
// Kubernetes markers
func IsContainerised() bool {
	return fileExists("/.dockerenv") ||
		cgroupMentionsRuntime("/proc/1/cgroup") ||
		os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func cgroupMentionsRuntime(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	content := string(data)
	for _, marker := range []string{"docker", "containerd", "kubepods"} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// IsLoopback reports hosts that cannot be reached from outside a container
func IsLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasPrefix(host, "127.")
}
