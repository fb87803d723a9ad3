// Package persist loads and saves the per-operator account-data blob
// that holds every room's persisted config plus the global settings
// owned by the process bootstrap.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/fabric"
)

// AccountDataKey is the account-data key the whole blob lives under.
const AccountDataKey = "irc"

// RoomEntry is one room's persisted config, keyed by fabric room id in
// Blob.Rooms. Kind disambiguates which room constructor Load should
// hand Config to; Config holds exactly what that room kind's ToConfig
// returned.
type RoomEntry struct {
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config"`
}

// Blob is the full persisted shape for one operator.
type Blob struct {
	// Global carries keys owned by the process bootstrap (member_sync,
	// puppet prefix, etc.), opaque to this package and round-tripped
	// as-is.
	Global map[string]any       `json:"global,omitempty"`
	Rooms  map[string]RoomEntry `json:"rooms"`
}

func emptyBlob() *Blob {
	return &Blob{Rooms: map[string]RoomEntry{}}
}

// Load fetches the operator's blob. A NotFound response is absorbed
// into an empty blob with fresh=true, signaling the caller to save
// defaults immediately.
func Load(ctx context.Context, client fabric.Client, operator id.UserID) (blob *Blob, fresh bool, err error) {
	var raw Blob
	err = client.GetAccountData(ctx, operator, AccountDataKey, &raw)
	if errors.Is(err, fabric.ErrNotFound) {
		return emptyBlob(), true, nil
	}
	if err != nil {
		return nil, false, &fabric.ErrRemote{Op: "GetAccountData", Err: err}
	}
	if raw.Rooms == nil {
		raw.Rooms = map[string]RoomEntry{}
	}
	return &raw, false, nil
}

// NewRoomEntry serializes config (any of DirectConfig/ChannelConfig/
// PlumbedConfig) into a RoomEntry's generic Config map via the
// encoding/json round-trip the generic GetAccountData/PutAccountData
// contract is shaped around.
func NewRoomEntry(kind string, config any) (RoomEntry, error) {
	b, err := json.Marshal(config)
	if err != nil {
		return RoomEntry{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return RoomEntry{}, err
	}
	return RoomEntry{Kind: kind, Config: m}, nil
}

// Load unmarshals a RoomEntry's generic Config map back into a
// concrete config struct, the dual of NewRoomEntry.
func (e RoomEntry) Load(out any) error {
	b, err := json.Marshal(e.Config)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// Store serializes whole-blob writes, guarded by a per-operator mutex
// so concurrent room saves merge instead of racing.
type Store struct {
	client fabric.Client

	mus     map[id.UserID]*sync.Mutex
	muGuard sync.Mutex
}

// NewStore builds a Store bound to a fabric client.
func NewStore(client fabric.Client) *Store {
	return &Store{client: client, mus: map[id.UserID]*sync.Mutex{}}
}

func (s *Store) lockFor(operator id.UserID) *sync.Mutex {
	s.muGuard.Lock()
	defer s.muGuard.Unlock()
	m, ok := s.mus[operator]
	if !ok {
		m = &sync.Mutex{}
		s.mus[operator] = m
	}
	return m
}

// SaveRoom merges one room's entry into the operator's blob and writes
// it back. Saving the same entry twice is a no-op on the stored
// shape.
func (s *Store) SaveRoom(ctx context.Context, operator id.UserID, roomID id.RoomID, entry RoomEntry) error {
	lock := s.lockFor(operator)
	lock.Lock()
	defer lock.Unlock()

	blob, _, err := Load(ctx, s.client, operator)
	if err != nil {
		return err
	}
	blob.Rooms[string(roomID)] = entry
	if err := s.client.PutAccountData(ctx, operator, AccountDataKey, blob); err != nil {
		return &fabric.ErrRemote{Op: "PutAccountData", Err: err}
	}
	return nil
}

// DeleteRoom removes a room's entry on cleanup.
func (s *Store) DeleteRoom(ctx context.Context, operator id.UserID, roomID id.RoomID) error {
	lock := s.lockFor(operator)
	lock.Lock()
	defer lock.Unlock()

	blob, _, err := Load(ctx, s.client, operator)
	if err != nil {
		return err
	}
	delete(blob.Rooms, string(roomID))
	if err := s.client.PutAccountData(ctx, operator, AccountDataKey, blob); err != nil {
		return &fabric.ErrRemote{Op: "PutAccountData", Err: err}
	}
	return nil
}
