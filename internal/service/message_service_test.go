package service

import (
	"Zalor/internal/api/dto"
	"Zalor/internal/model"
	"Zalor/internal/pkg/consts"
	"Zalor/internal/pkg/mongo"
	"Zalor/internal/realtime"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// fakeMessageRepo 内存实现，谓词与 Mongo 查询保持一致
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*mongo.Message
	saveErr  error
}

func (f *fakeMessageRepo) SaveMessage(_ context.Context, msg *mongo.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	msg.ID = primitive.NewObjectID()
	cp := *msg
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id primitive.ObjectID) (*mongo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, mongodriver.ErrNoDocuments
}

func (f *fakeMessageRepo) GetDirectHistory(_ context.Context, userID, peerID uint64) ([]*mongo.Message, error) {
	return f.filter(func(m *mongo.Message) bool {
		return !m.IsGroup &&
			((m.SenderID == userID && m.ReceiverID == peerID) || (m.SenderID == peerID && m.ReceiverID == userID))
	}), nil
}

func (f *fakeMessageRepo) GetGroupHistory(_ context.Context, groupID uint64) ([]*mongo.Message, error) {
	return f.filter(func(m *mongo.Message) bool {
		return m.IsGroup && m.ReceiverID == groupID
	}), nil
}

func (f *fakeMessageRepo) filter(pred func(m *mongo.Message) bool) []*mongo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]*mongo.Message, 0)
	for _, m := range f.messages {
		if pred(m) {
			cp := *m
			res = append(res, &cp)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res
}

func (f *fakeMessageRepo) MarkRecalled(_ context.Context, id primitive.ObjectID) error {
	return f.update(id, func(m *mongo.Message) { m.IsRecalled = true })
}

func (f *fakeMessageRepo) UpdateContent(_ context.Context, id primitive.ObjectID, content string, at time.Time) (*mongo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id && !m.IsRecalled {
			m.Content = content
			m.UpdatedAt = &at
			cp := *m
			return &cp, nil
		}
	}
	return nil, mongo.ErrMessageRecalled
}

func (f *fakeMessageRepo) update(id primitive.ObjectID, fn func(m *mongo.Message)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			fn(m)
			return nil
		}
	}
	return mongodriver.ErrNoDocuments
}

func (f *fakeMessageRepo) MarkDirectRead(_ context.Context, viewerID, peerID uint64) (int64, error) {
	return f.markRead(func(m *mongo.Message) bool {
		return !m.IsGroup && m.SenderID == peerID && m.ReceiverID == viewerID
	}), nil
}

func (f *fakeMessageRepo) MarkGroupRead(_ context.Context, viewerID, groupID uint64) (int64, error) {
	return f.markRead(func(m *mongo.Message) bool {
		return m.IsGroup && m.ReceiverID == groupID && m.SenderID != viewerID
	}), nil
}

func (f *fakeMessageRepo) markRead(pred func(m *mongo.Message) bool) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if !m.IsRead && pred(m) {
			m.IsRead = true
			n++
		}
	}
	return n
}

func (f *fakeMessageRepo) EnsureIndexes(context.Context) error { return nil }

func (f *fakeMessageRepo) stored(id string) *mongo.Message {
	oid, _ := primitive.ObjectIDFromHex(id)
	m, _ := f.GetByID(context.Background(), oid)
	return m
}

type fakeUserRepo struct {
	users map[uint64]*model.User
}

func (f *fakeUserRepo) GetUserById(_ context.Context, id uint64) (*model.User, error) {
	return f.users[id], nil
}

func (f *fakeUserRepo) GetUserSimpleInfoByIds(_ context.Context, ids []uint64) ([]*model.User, error) {
	res := make([]*model.User, 0)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

func (f *fakeUserRepo) SetOnline(context.Context, uint64, bool) error { return nil }

type fakeGroupRepo struct {
	groups map[uint64]bool
}

func (f *fakeGroupRepo) Exists(_ context.Context, id uint64) (bool, error) {
	return f.groups[id], nil
}

type fakeSenders struct {
	users map[uint64]*model.User
	err   error
}

func (f *fakeSenders) GetSenders(_ context.Context, ids []uint64) (map[uint64]*dto.SenderDTO, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := make(map[uint64]*dto.SenderDTO)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			res[id] = &dto.SenderDTO{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
		}
	}
	return res, nil
}

func (f *fakeSenders) Invalidate(context.Context, uint64) error { return nil }

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) UploadFile(ctx context.Context, objectName, filePath, contentType string) (string, error) {
	args := m.Called(ctx, objectName, filePath, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) DeleteFile(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

type roomEvent struct {
	room string
	evt  realtime.Event
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []roomEvent
}

func (r *recordingBroadcaster) BroadcastToRoom(roomID string, evt realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, roomEvent{room: roomID, evt: evt})
}

func (r *recordingBroadcaster) BroadcastGlobal(evt realtime.Event) {
	r.BroadcastToRoom("", evt)
}

type fixture struct {
	svc     *messageServiceImpl
	repo    *fakeMessageRepo
	storage *mockStorage
	senders *fakeSenders
	bc      *recordingBroadcaster
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := map[uint64]*model.User{
		1: {ID: 1, Name: "alice", Avatar: "alice.png"},
		2: {ID: 2, Name: "bob", Avatar: "bob.png"},
		3: {ID: 3, Name: "carol", Avatar: "carol.png"},
	}
	f := &fixture{
		repo:    &fakeMessageRepo{},
		storage: &mockStorage{},
		senders: &fakeSenders{users: users},
		bc:      &recordingBroadcaster{},
		clock:   time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewMessageService(
		f.repo,
		&fakeUserRepo{users: users},
		&fakeGroupRepo{groups: map[uint64]bool{300: true}},
		f.senders,
		f.storage,
		f.bc,
		UploadPolicy{MaxSize: 1024},
	).(*messageServiceImpl)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *fixture) send(t *testing.T, from uint64, to string, isGroup bool, content string) *dto.MessageDTO {
	t.Helper()
	res, err := f.svc.SendMessage(context.Background(), from, &dto.SendMessageReq{ReceiverID: to, IsGroup: isGroup, Content: content}, nil)
	require.NoError(t, err)
	return res
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func stage(t *testing.T, name string, data []byte) *dto.Attachment {
	t.Helper()
	p := filepath.Join(t.TempDir(), "staged-"+name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return &dto.Attachment{Path: p, FileName: name, Size: int64(len(data))}
}

func TestSendMessage_Text(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, 2, "1", false, "hello")

	assert.Equal(t, consts.MessageTypeText, res.Type)
	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, &dto.SenderDTO{ID: 2, Name: "bob", Avatar: "bob.png"}, res.Sender)
	assert.False(t, res.IsRead)
	assert.False(t, res.IsRecalled)
	assert.Nil(t, res.UpdatedAt)

	stored := f.repo.stored(res.ID)
	require.NotNil(t, stored)
	assert.False(t, stored.IsRead)

	require.Len(t, f.bc.events, 1)
	assert.Equal(t, "1-2", f.bc.events[0].room)
	assert.Equal(t, realtime.ReceiveMessage{Message: res}, f.bc.events[0].evt)
}

func TestSendMessage_Emoji(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{ReceiverID: "2", Content: ":)", Type: "emoji"}, nil)
	require.NoError(t, err)
	assert.Equal(t, consts.MessageTypeEmoji, res.Type)
}

func TestSendMessage_Group(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, "300", true, "hi all")
	require.Len(t, f.bc.events, 1)
	assert.Equal(t, "300", f.bc.events[0].room)
}

func TestSendMessage_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     *dto.SendMessageReq
		wantErr error
	}{
		{"empty content without attachment", &dto.SendMessageReq{ReceiverID: "2", Content: "  "}, ErrMessageEmpty},
		{"malformed receiver", &dto.SendMessageReq{ReceiverID: "bob", Content: "x"}, ErrReceiverInvalid},
		{"zero receiver", &dto.SendMessageReq{ReceiverID: "0", Content: "x"}, ErrReceiverInvalid},
		{"unknown user", &dto.SendMessageReq{ReceiverID: "99", Content: "x"}, ErrReceiverNotFound},
		{"unknown group", &dto.SendMessageReq{ReceiverID: "99", IsGroup: true, Content: "x"}, ErrReceiverNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.SendMessage(context.Background(), 1, tt.req, nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.repo.messages)
			assert.Empty(t, f.bc.events)
		})
	}
}

func TestSendMessage_Attachment(t *testing.T) {
	f := newFixture(t)
	file := stage(t, "photo.png", pngBytes)

	f.storage.On("UploadFile", mock.Anything, mock.MatchedBy(func(name string) bool {
		return strings.HasPrefix(name, "zalor/images/2024/05/01/") && strings.HasSuffix(name, ".png")
	}), file.Path, "image/png").Return("https://cdn/zalor/images/x.png", nil).Once()

	res, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{ReceiverID: "2", Content: "ignored"}, file)
	require.NoError(t, err)

	assert.Equal(t, consts.MessageTypeImage, res.Type)
	assert.Equal(t, "https://cdn/zalor/images/x.png", res.Content)
	assert.Equal(t, "photo.png", res.FileName)
	f.storage.AssertExpectations(t)

	_, statErr := os.Stat(file.Path)
	assert.True(t, os.IsNotExist(statErr), "staged file should be removed")
}

func TestSendMessage_AttachmentRejected(t *testing.T) {
	t.Run("unsupported type", func(t *testing.T) {
		f := newFixture(t)
		file := stage(t, "a.zip", []byte("PK\x03\x04\x14\x00\x00\x00\x00\x00"))

		_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{ReceiverID: "2"}, file)
		assert.ErrorIs(t, err, ErrFileNotSupported)

		_, statErr := os.Stat(file.Path)
		assert.True(t, os.IsNotExist(statErr))
		f.storage.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("too large", func(t *testing.T) {
		f := newFixture(t)
		file := stage(t, "big.png", pngBytes)
		file.Size = 4096

		_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{ReceiverID: "2"}, file)
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Empty(t, f.repo.messages)
	})

	t.Run("storage failure", func(t *testing.T) {
		f := newFixture(t)
		file := stage(t, "photo.png", pngBytes)
		f.storage.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("minio down")).Once()

		_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{ReceiverID: "2"}, file)
		assert.Error(t, err)
		assert.Empty(t, f.repo.messages)
		assert.Empty(t, f.bc.events)

		_, statErr := os.Stat(file.Path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("store failure removes uploaded object", func(t *testing.T) {
		f := newFixture(t)
		f.repo.saveErr = errors.New("mongo down")
		file := stage(t, "photo.png", pngBytes)
		f.storage.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("https://cdn/x.png", nil).Once()
		f.storage.On("DeleteFile", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{ReceiverID: "2"}, file)
		assert.Error(t, err)
		assert.Empty(t, f.bc.events)
		f.storage.AssertExpectations(t)
	})
}

func TestSendMessage_SenderLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.senders.err = errors.New("redis down")

	res := f.send(t, 1, "2", false, "hi")
	assert.Equal(t, uint64(1), res.Sender.ID)
	assert.Len(t, f.repo.messages, 1)
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t)
	first := f.send(t, 1, "2", false, "one")
	f.send(t, 3, "2", false, "other conversation")
	second := f.send(t, 2, "1", false, "two")
	f.send(t, 1, "300", true, "group")

	list, err := f.svc.GetHistory(context.Background(), 1, "2", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.False(t, list[1].IsRead)
	assert.False(t, f.repo.stored(second.ID).IsRead)

	group, err := f.svc.GetHistory(context.Background(), 2, "300", true)
	require.NoError(t, err)
	require.Len(t, group, 1)
	assert.Equal(t, "alice", group[0].Sender.Name)

	_, err = f.svc.GetHistory(context.Background(), 1, "x", false)
	assert.ErrorIs(t, err, ErrReceiverInvalid)
}

func TestGetHistory_HidesRecalledContent(t *testing.T) {
	f := newFixture(t)
	msg := f.send(t, 1, "2", false, "secret")
	require.NoError(t, f.svc.RecallMessage(context.Background(), 1, msg.ID))

	list, err := f.svc.GetHistory(context.Background(), 2, "1", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRecalled)
	assert.Empty(t, list[0].Content)
	assert.Equal(t, "secret", f.repo.stored(msg.ID).Content)
}

func TestMarkAsRead_Direct(t *testing.T) {
	f := newFixture(t)
	f.send(t, 2, "1", false, "a")
	f.send(t, 2, "1", false, "b")
	own := f.send(t, 1, "2", false, "mine")
	f.send(t, 3, "1", false, "from carol")
	f.bc.events = nil

	count, err := f.svc.MarkAsRead(context.Background(), 1, "2", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.False(t, f.repo.stored(own.ID).IsRead)

	require.Len(t, f.bc.events, 1)
	assert.Equal(t, "1-2", f.bc.events[0].room)
	assert.Equal(t, realtime.MessageRead{ReceiverID: 2, SenderID: 1}, f.bc.events[0].evt)

	count, err = f.svc.MarkAsRead(context.Background(), 1, "2", false)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, f.bc.events, 1)
}

func TestMarkAsRead_GroupExcludesOwnMessages(t *testing.T) {
	f := newFixture(t)
	own := f.send(t, 1, "300", true, "mine")
	f.send(t, 2, "300", true, "bob")
	f.send(t, 3, "300", true, "carol")
	f.bc.events = nil

	count, err := f.svc.MarkAsRead(context.Background(), 1, "300", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.False(t, f.repo.stored(own.ID).IsRead)

	require.Len(t, f.bc.events, 1)
	assert.Equal(t, "300", f.bc.events[0].room)
	assert.Equal(t, realtime.MessageRead{ReceiverID: 300, SenderID: 1}, f.bc.events[0].evt)
}

func TestRecallMessage(t *testing.T) {
	f := newFixture(t)
	msg := f.send(t, 1, "2", false, "oops")
	f.bc.events = nil
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.RecallMessage(ctx, 2, msg.ID), ErrNotMessageSender)
	assert.False(t, f.repo.stored(msg.ID).IsRecalled)
	assert.Empty(t, f.bc.events)

	assert.ErrorIs(t, f.svc.RecallMessage(ctx, 1, primitive.NewObjectID().Hex()), ErrMessageNotFound)
	assert.ErrorIs(t, f.svc.RecallMessage(ctx, 1, "not-an-id"), ErrMessageIDInvalid)

	require.NoError(t, f.svc.RecallMessage(ctx, 1, msg.ID))
	require.NoError(t, f.svc.RecallMessage(ctx, 1, msg.ID))
	assert.True(t, f.repo.stored(msg.ID).IsRecalled)

	require.Len(t, f.bc.events, 2)
	assert.Equal(t, "1-2", f.bc.events[0].room)
	assert.Equal(t, realtime.MessageRecalled{MessageID: msg.ID}, f.bc.events[0].evt)
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	msg := f.send(t, 1, "2", false, "draft")
	f.bc.events = nil
	ctx := context.Background()

	_, err := f.svc.EditMessage(ctx, 2, msg.ID, "hijack")
	assert.ErrorIs(t, err, ErrNotMessageSender)
	assert.Equal(t, "draft", f.repo.stored(msg.ID).Content)

	_, err = f.svc.EditMessage(ctx, 1, msg.ID, " ")
	assert.ErrorIs(t, err, ErrMessageEmpty)

	res, err := f.svc.EditMessage(ctx, 1, msg.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", res.Content)
	require.NotNil(t, res.UpdatedAt)
	assert.Equal(t, msg.CreatedAt, res.CreatedAt)
	assert.True(t, res.UpdatedAt.After(res.CreatedAt))

	require.Len(t, f.bc.events, 1)
	assert.Equal(t, "1-2", f.bc.events[0].room)
	assert.Equal(t, realtime.MessageEdited{Message: res}, f.bc.events[0].evt)
}

func TestEditMessage_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	recalled := f.send(t, 1, "2", false, "gone")
	require.NoError(t, f.svc.RecallMessage(ctx, 1, recalled.ID))
	_, err := f.svc.EditMessage(ctx, 1, recalled.ID, "again")
	assert.ErrorIs(t, err, ErrMessageRecalled)

	file := stage(t, "photo.png", pngBytes)
	f.storage.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("https://cdn/x.png", nil)
	media, err := f.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ReceiverID: "2"}, file)
	require.NoError(t, err)
	_, err = f.svc.EditMessage(ctx, 1, media.ID, "text now")
	assert.ErrorIs(t, err, ErrMessageNotEditable)

	_, err = f.svc.EditMessage(ctx, 1, primitive.NewObjectID().Hex(), "x")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestResolve(t *testing.T) {
	code, err, ok := Resolve(ErrNotMessageSender)
	assert.True(t, ok)
	assert.Equal(t, Forbidden, code)
	assert.Equal(t, ErrNotMessageSender, err)

	code, _, ok = Resolve(errors.Join(errors.New("ctx"), ErrMessageNotFound))
	assert.True(t, ok)
	assert.Equal(t, NotFound, code)

	code, err, ok = Resolve(errors.New("boom"))
	assert.False(t, ok)
	assert.Equal(t, InternalServerError, code)
	assert.Equal(t, UnExpectedError, err)
}
