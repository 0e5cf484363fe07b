package minio

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/radosgo/internal/transport"
)

// Reserved key layout inside each bucket
//
//	.rados/auid                 pool auid, decimal
//	.rados/snaps.json           snapshot registry
//	.rados/snap/<id>/<oid>      object copy taken by snapshot <id>
const (
	reservedPrefix = ".rados/"
	keyAuid        = reservedPrefix + "auid"
	keySnaps       = reservedPrefix + "snaps.json"
	snapDir        = reservedPrefix + "snap/"
)

func isReserved(key string) bool {
	return strings.HasPrefix(key, reservedPrefix)
}

func validateOid(op, oid string) error {
	if err := transport.ValidateOid(op, oid); err != nil {
		return err
	}
	if isReserved(oid) {
		return transport.Errorf(transport.StatusInvalid, op, fmt.Errorf("object ids under %q are reserved", reservedPrefix))
	}
	return nil
}

func snapPrefix(id transport.SnapID) string {
	return snapDir + strconv.FormatUint(uint64(id), 10) + "/"
}

func snapObjectKey(id transport.SnapID, oid string) string {
	return snapPrefix(id) + oid
}

func parseAuid(b []byte) (uint64, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// registry is the per-bucket snapshot table.
type registry struct {
	Seq   uint64                   `json:"seq"`
	Snaps map[string]registryEntry `json:"snaps"` // keyed by decimal id
}

type registryEntry struct {
	Name  string    `json:"name"`
	Stamp time.Time `json:"stamp"`
}

func newRegistry() *registry {
	return &registry{Snaps: make(map[string]registryEntry)}
}

func decodeRegistry(b []byte) (*registry, error) {
	r := newRegistry()
	if len(b) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(b, r); err != nil {
		return nil, err
	}
	if r.Snaps == nil {
		r.Snaps = make(map[string]registryEntry)
	}
	return r, nil
}

func (r *registry) encode() ([]byte, error) {
	return json.Marshal(r)
}

func (r *registry) lookup(name string) (transport.SnapID, bool) {
	for key, e := range r.Snaps {
		if e.Name == name {
			id, err := strconv.ParseUint(key, 10, 64)
			if err != nil {
				continue
			}
			return transport.SnapID(id), true
		}
	}
	return 0, false
}

func (r *registry) get(id transport.SnapID) (registryEntry, bool) {
	e, ok := r.Snaps[strconv.FormatUint(uint64(id), 10)]
	return e, ok
}

// add assigns the next id to name. Ids are never reused.
func (r *registry) add(name string, stamp time.Time) transport.SnapID {
	r.Seq++
	id := transport.SnapID(r.Seq)
	r.Snaps[strconv.FormatUint(r.Seq, 10)] = registryEntry{Name: name, Stamp: stamp}
	return id
}

func (r *registry) remove(id transport.SnapID) {
	delete(r.Snaps, strconv.FormatUint(uint64(id), 10))
}

func (r *registry) ids() []transport.SnapID {
	out := make([]transport.SnapID, 0, len(r.Snaps))
	for key := range r.Snaps {
		if id, err := strconv.ParseUint(key, 10, 64); err == nil {
			out = append(out, transport.SnapID(id))
		}
	}
	return out
}
