package network

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var ErrNoNetwork = errors.New("no network id in location")

// Location identifies the network and, optionally, the simulation run to display
type Location struct {
	NetworkID int
	RunID     int // 0 when absent
}

// HasRun reports whether a run id is present
func (l Location) HasRun() bool {
	return l.RunID > 0
}

// ParseLocation extracts ids from a page URL or path such as
// "/metro/network/3/run/7/". The network id is required.
func ParseLocation(raw string) (Location, error) {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}

	var loc Location
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "network", "run":
			id, err := strconv.Atoi(parts[i+1])
			if err != nil || id <= 0 {
				return Location{}, fmt.Errorf("invalid %s id %q in %q", parts[i], parts[i+1], raw)
			}
			if parts[i] == "network" {
				loc.NetworkID = id
			} else {
				loc.RunID = id
			}
			i++
		}
	}
	if loc.NetworkID == 0 {
		return Location{}, fmt.Errorf("%w: %q", ErrNoNetwork, raw)
	}
	return loc, nil
}
