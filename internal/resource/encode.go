// internal/resource/encode.go
package resource

import (
	"encoding/json"

	"github.com/ocfkit/buttond/internal/button"
)

// Discovery policy bitmask.
const (
	policyDiscoverable = 1 << 0
	policyObservable   = 1 << 1
)

// Link is one entry of the /oic/res discovery payload.
type Link struct {
	Href          string   `json:"href"`
	ResourceTypes []string `json:"rt"`
	Interfaces    []string `json:"if"`
	Policy        Policy   `json:"p"`
}

type Policy struct {
	BitMask int `json:"bm"`
}

func encodeSnapshot(snap button.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func encodeLinks(resources []*Resource) ([]byte, error) {
	links := make([]Link, 0, len(resources))

	for _, r := range resources {
		if !r.desc.Discoverable {
			continue
		}

		bm := policyDiscoverable
		if r.desc.Observable {
			bm |= policyObservable
		}

		links = append(links, Link{
			Href:          r.desc.Path,
			ResourceTypes: r.desc.ResourceTypes,
			Interfaces:    r.desc.Interfaces,
			Policy:        Policy{BitMask: bm},
		})
	}

	return json.Marshal(links)
}
