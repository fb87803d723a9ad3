package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/fabric"
	"github.com/mk6i/matrix-irc-bridge/persist"
	"github.com/mk6i/matrix-irc-bridge/puppet"
)

// fakeAccountDataClient is a minimal fabric.Client implementing only
// what persist.Store needs, enough to exercise Room.Save's round-trip
// without a real homeserver.
type fakeAccountDataClient struct {
	blobs map[id.UserID][]byte
}

func newFakeAccountDataClient() *fakeAccountDataClient {
	return &fakeAccountDataClient{blobs: map[id.UserID][]byte{}}
}

func (f *fakeAccountDataClient) CreateRoom(context.Context, fabric.RoomCreateParams) (id.RoomID, error) {
	return "", nil
}
func (f *fakeAccountDataClient) JoinRoomByAlias(context.Context, string) (id.RoomID, error) {
	return "", nil
}
func (f *fakeAccountDataClient) Invite(context.Context, id.RoomID, id.UserID) error { return nil }
func (f *fakeAccountDataClient) Leave(context.Context, id.RoomID) error             { return nil }
func (f *fakeAccountDataClient) GetStateEvent(context.Context, id.RoomID, event.Type, any) error {
	return nil
}
func (f *fakeAccountDataClient) SetTopic(context.Context, id.RoomID, string) error { return nil }
func (f *fakeAccountDataClient) GetEvent(context.Context, id.RoomID, id.EventID) (*fabric.Event, error) {
	return nil, nil
}
func (f *fakeAccountDataClient) JoinedMembers(context.Context, id.RoomID) (map[id.UserID]string, error) {
	return nil, nil
}
func (f *fakeAccountDataClient) SendMessage(context.Context, id.RoomID, id.UserID, event.MessageEventContent) (id.EventID, error) {
	return "", nil
}
func (f *fakeAccountDataClient) SendReaction(context.Context, id.RoomID, id.EventID, string) error {
	return nil
}
func (f *fakeAccountDataClient) SendReceipt(context.Context, id.RoomID, id.EventID) error { return nil }
func (f *fakeAccountDataClient) RedactEvent(context.Context, id.RoomID, id.EventID) error { return nil }
func (f *fakeAccountDataClient) UploadMedia(context.Context, id.UserID, string, []byte) (id.ContentURIString, error) {
	return "", nil
}
func (f *fakeAccountDataClient) ResolveMediaURL(context.Context, id.ContentURIString) (string, error) {
	return "", nil
}
func (f *fakeAccountDataClient) QuarantineMedia(context.Context, id.ContentURIString) error {
	return nil
}

func (f *fakeAccountDataClient) Sync(ctx context.Context, onEvent func(*fabric.Event)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAccountDataClient) GetAccountData(ctx context.Context, userID id.UserID, key string, out any) error {
	b, ok := f.blobs[userID]
	if !ok {
		return fabric.ErrNotFound
	}
	return json.Unmarshal(b, out)
}

func (f *fakeAccountDataClient) PutAccountData(ctx context.Context, userID id.UserID, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.blobs[userID] = b
	return nil
}

func testStoreNetwork(t *testing.T, client fabric.Client) (*NetworkRoom, *persist.Store) {
	t.Helper()
	store := persist.NewStore(client)
	prefix := puppet.Prefix{Localpart: "irc_", ServerName: "example.org"}
	n := NewNetworkRoom(id.UserID("@op:example.org"), "net", client, fakeConn{nick: "bridgebot"}, prefix)
	n.Store = store
	return n, store
}

func TestDirectRoom_Save_RoundTripsThroughAccountData(t *testing.T) {
	client := newFakeAccountDataClient()
	n, store := testStoreNetwork(t, client)
	d := NewDirectRoom(n, "alice")
	d.ID = "!room:example.org"

	assert.NoError(t, d.Save(context.Background()))

	blob, fresh, err := persist.Load(context.Background(), client, n.Operator)
	assert.NoError(t, err)
	assert.False(t, fresh)
	entry, ok := blob.Rooms[string(d.ID)]
	assert.True(t, ok)
	assert.Equal(t, "direct", entry.Kind)
	_ = store
}

func TestPlumbedRoom_Save_PersistsPolicyFields(t *testing.T) {
	client := newFakeAccountDataClient()
	n, _ := testStoreNetwork(t, client)
	p := NewPlumbedRoom(n, "#chat")
	p.ID = "!plumbed:example.org"
	p.MaxLines = 1
	p.UsePastebin = false

	assert.NoError(t, p.Save(context.Background()))

	blob, _, err := persist.Load(context.Background(), client, n.Operator)
	assert.NoError(t, err)
	entry := blob.Rooms[string(p.ID)]
	assert.Equal(t, "plumbed", entry.Kind)

	var cfg PlumbedConfig
	assert.NoError(t, entry.Load(&cfg))
	assert.Equal(t, 1, cfg.MaxLines)
	assert.False(t, cfg.UsePastebin)
}
