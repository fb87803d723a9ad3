package persist

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/fabric"
)

type fakeClient struct {
	data map[string][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string][]byte{}}
}

func (f *fakeClient) CreateRoom(ctx context.Context, params fabric.RoomCreateParams) (id.RoomID, error) {
	return "", nil
}
func (f *fakeClient) JoinRoomByAlias(ctx context.Context, alias string) (id.RoomID, error) {
	return "", nil
}
func (f *fakeClient) Invite(ctx context.Context, roomID id.RoomID, userID id.UserID) error { return nil }
func (f *fakeClient) Leave(ctx context.Context, roomID id.RoomID) error                     { return nil }
func (f *fakeClient) GetStateEvent(ctx context.Context, roomID id.RoomID, evType event.Type, content any) error {
	return nil
}
func (f *fakeClient) SetTopic(ctx context.Context, roomID id.RoomID, topic string) error { return nil }
func (f *fakeClient) GetEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) (*fabric.Event, error) {
	return nil, nil
}
func (f *fakeClient) JoinedMembers(ctx context.Context, roomID id.RoomID) (map[id.UserID]string, error) {
	return nil, nil
}
func (f *fakeClient) SendMessage(ctx context.Context, roomID id.RoomID, asUser id.UserID, content event.MessageEventContent) (id.EventID, error) {
	return "", nil
}
func (f *fakeClient) SendReaction(ctx context.Context, roomID id.RoomID, eventID id.EventID, key string) error {
	return nil
}
func (f *fakeClient) SendReceipt(ctx context.Context, roomID id.RoomID, eventID id.EventID) error {
	return nil
}
func (f *fakeClient) RedactEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) error {
	return nil
}
func (f *fakeClient) UploadMedia(ctx context.Context, asUser id.UserID, contentType string, data []byte) (id.ContentURIString, error) {
	return "", nil
}
func (f *fakeClient) ResolveMediaURL(ctx context.Context, uri id.ContentURIString) (string, error) {
	return "", nil
}
func (f *fakeClient) QuarantineMedia(ctx context.Context, mediaURI id.ContentURIString) error {
	return nil
}

func (f *fakeClient) Sync(ctx context.Context, onEvent func(*fabric.Event)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeClient) GetAccountData(ctx context.Context, userID id.UserID, key string, out any) error {
	raw, ok := f.data[string(userID)+"/"+key]
	if !ok {
		return fabric.ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeClient) PutAccountData(ctx context.Context, userID id.UserID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[string(userID)+"/"+key] = raw
	return nil
}

func TestLoad_NotFoundYieldsFreshEmptyBlob(t *testing.T) {
	client := newFakeClient()
	operator := id.UserID("@op:example.org")

	blob, fresh, err := Load(context.Background(), client, operator)
	assert.NoError(t, err)
	assert.True(t, fresh)
	assert.Empty(t, blob.Rooms)
}

func TestRoomEntry_RoundTrip(t *testing.T) {
	type cfg struct {
		Name    string
		Network string
	}
	entry, err := NewRoomEntry("direct", cfg{Name: "alice", Network: "freenode"})
	assert.NoError(t, err)
	assert.Equal(t, "direct", entry.Kind)

	var out cfg
	assert.NoError(t, entry.Load(&out))
	assert.Equal(t, "alice", out.Name)
	assert.Equal(t, "freenode", out.Network)
}

func TestStore_SaveRoomThenLoad(t *testing.T) {
	client := newFakeClient()
	store := NewStore(client)
	operator := id.UserID("@op:example.org")
	roomID := id.RoomID("!abc:example.org")

	entry, err := NewRoomEntry("channel", map[string]any{"name": "#chat"})
	assert.NoError(t, err)

	assert.NoError(t, store.SaveRoom(context.Background(), operator, roomID, entry))

	blob, fresh, err := Load(context.Background(), client, operator)
	assert.NoError(t, err)
	assert.False(t, fresh)
	got, ok := blob.Rooms[string(roomID)]
	assert.True(t, ok)
	assert.Equal(t, "channel", got.Kind)
	assert.Equal(t, "#chat", got.Config["name"])
}

func TestStore_DeleteRoom(t *testing.T) {
	client := newFakeClient()
	store := NewStore(client)
	operator := id.UserID("@op:example.org")
	roomID := id.RoomID("!abc:example.org")

	entry, err := NewRoomEntry("channel", map[string]any{"name": "#chat"})
	assert.NoError(t, err)
	assert.NoError(t, store.SaveRoom(context.Background(), operator, roomID, entry))
	assert.NoError(t, store.DeleteRoom(context.Background(), operator, roomID))

	blob, _, err := Load(context.Background(), client, operator)
	assert.NoError(t, err)
	_, ok := blob.Rooms[string(roomID)]
	assert.False(t, ok)
}

func TestStore_SaveRoomMergesRatherThanOverwrites(t *testing.T) {
	client := newFakeClient()
	store := NewStore(client)
	operator := id.UserID("@op:example.org")
	room1 := id.RoomID("!1:example.org")
	room2 := id.RoomID("!2:example.org")

	e1, _ := NewRoomEntry("direct", map[string]any{"name": "alice"})
	e2, _ := NewRoomEntry("direct", map[string]any{"name": "bob"})

	assert.NoError(t, store.SaveRoom(context.Background(), operator, room1, e1))
	assert.NoError(t, store.SaveRoom(context.Background(), operator, room2, e2))

	blob, _, err := Load(context.Background(), client, operator)
	assert.NoError(t, err)
	assert.Len(t, blob.Rooms, 2)
}
