package device

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// IsPrimaryNode returns true for DRM primary node names (card0, card1, ...)
// but not connectors (card0-DP-1), render nodes (renderD128) or legacy
// control nodes (controlD64).
func IsPrimaryNode(name string) bool {
	if !strings.HasPrefix(name, "card") {
		return false
	}
	suffix := name[4:]
	if len(suffix) == 0 {
		return false
	}
	for _, character := range suffix {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}

// PrimaryNodes lists the primary node names under sysRoot/class/drm in
// ascending numeric order. Returns nil if the directory cannot be read.
func PrimaryNodes(sysRoot string) []string {
	entries, err := os.ReadDir(filepath.Join(sysRoot, "class/drm"))
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if IsPrimaryNode(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, _ := strconv.Atoi(names[i][4:])
		b, _ := strconv.Atoi(names[j][4:])
		return a < b
	})
	return names
}
