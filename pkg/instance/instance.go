package instance

import "os"

// GetID identifies this worker replica in logs. BAZAAR_WORKER_ID is set per pod;
// the hostname is used otherwise.
func GetID() string {
	if id := os.Getenv("BAZAAR_WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
