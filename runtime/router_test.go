package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type routerFixture struct {
	router     *Router
	registry   *Registry
	history    *mocks.MockIHistoryRepository
	voiceNotes *mocks.MockIVoiceNoteStore
	sinks      map[string]*Sink
}

func newRouterFixture(t *testing.T, users ...string) routerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	history := mocks.NewMockIHistoryRepository(ctrl)
	voiceNotes := mocks.NewMockIVoiceNoteStore(ctrl)
	router := NewRouter(logs.GetLoggerFromLevel(slog.LevelDebug), registry, history, voiceNotes)
	router.now = func() time.Time { return fixedNow }

	sinks := make(map[string]*Sink)
	for _, user := range users {
		sinks[user] = &Sink{}
		require.NoError(t, registry.Register(user, sinks[user], ""))
	}
	return routerFixture{router: router, registry: registry, history: history, voiceNotes: voiceNotes, sinks: sinks}
}

// recordMatcher ignores the random record ID.
func recordMatcher(kind domain.RecordKind, sender, target, content string) gomock.Matcher {
	return gomock.Cond(func(x any) bool {
		r, ok := x.(domain.HistoryRecord)
		return ok && r.Kind == kind && r.Sender == sender && r.Target == target &&
			r.Content == content && r.At.Equal(fixedNow)
	})
}

func TestRouter_SendDirect(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob", "carol")
	ctx := context.Background()

	// Given a direct message from alice to bob
	f.history.EXPECT().Append(recordMatcher(domain.KindText, "alice", "bob", "hi")).Return(nil)

	// When it is routed
	report, err := f.router.Route(ctx, "alice", domain.SendDirectCommand{Target: "bob", Text: "hi"})

	// Then only bob receives it, in the chat format
	req.NoError(err)
	req.Equal([]string{"bob"}, report.Delivered)
	req.Equal([]string{"alice: hi"}, f.sinks["bob"].Lines())
	req.Empty(f.sinks["alice"].Lines())
	req.Empty(f.sinks["carol"].Lines())
}

func TestRouter_SendDirect_Offline_Target_Is_Dropped_But_Recorded(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice")

	f.history.EXPECT().Append(recordMatcher(domain.KindText, "alice", "nobody", "hello?")).Return(nil)

	report, err := f.router.Route(context.Background(), "alice", domain.SendDirectCommand{Target: "nobody", Text: "hello?"})

	req.NoError(err)
	req.Equal([]string{"nobody"}, report.Dropped)
	req.Empty(f.sinks["alice"].Lines())
}

func TestRouter_SendGroup_Reaches_Every_Member_Including_Sender(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob", "carol")
	f.registry.JoinGroup("team", "alice")
	f.registry.JoinGroup("team", "bob")

	// Given one history record for the whole fan-out
	f.history.EXPECT().Append(recordMatcher(domain.KindText, "alice", "team", "standup")).Return(nil).Times(1)

	report, err := f.router.Route(context.Background(), "alice", domain.SendGroupCommand{Group: "team", Text: "standup"})

	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, report.Delivered)
	req.Equal([]string{"alice: standup"}, f.sinks["alice"].Lines())
	req.Equal([]string{"alice: standup"}, f.sinks["bob"].Lines())
	req.Empty(f.sinks["carol"].Lines())
}

func TestRouter_SendGroup_Unknown_Group(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice")
	f.history.EXPECT().Append(gomock.Any()).Return(nil)

	report, err := f.router.Route(context.Background(), "alice", domain.SendGroupCommand{Group: "ghosts", Text: "boo"})

	req.NoError(err)
	req.Empty(report.Delivered)
	req.Empty(f.sinks["alice"].Lines())
}

func TestRouter_Broadcast(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob")
	f.history.EXPECT().Append(recordMatcher(domain.KindSystem, "alice", domain.AllTarget, "hello all")).Return(nil)

	report, err := f.router.Route(context.Background(), "alice", domain.BroadcastCommand{Text: "hello all"})

	req.NoError(err)
	req.Len(report.Delivered, 2)
	req.Equal([]string{"[SYSTEM] alice: hello all"}, f.sinks["alice"].Lines())
	req.Equal([]string{"[SYSTEM] alice: hello all"}, f.sinks["bob"].Lines())
}

func TestRouter_Create_And_Join_Reply_To_Sender(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob")
	ctx := context.Background()

	_, err := f.router.Route(ctx, "alice", domain.CreateGroupCommand{Group: "team"})
	req.NoError(err)
	_, err = f.router.Route(ctx, "alice", domain.JoinGroupCommand{Group: "team"})
	req.NoError(err)
	_, err = f.router.Route(ctx, "alice", domain.JoinGroupCommand{Group: "team"})
	req.NoError(err)

	req.Equal([]string{"Group created: team", "Joined group: team", "Joined group: team"}, f.sinks["alice"].Lines())
	req.Equal([]string{"alice"}, f.registry.MembersOf("team"))
	req.Empty(f.sinks["bob"].Lines())
}

func TestRouter_Preserves_Order_Per_Sender(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob")
	f.history.EXPECT().Append(gomock.Any()).Return(nil).Times(3)

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.router.Route(context.Background(), "alice", domain.SendDirectCommand{Target: "bob", Text: text})
		req.NoError(err)
	}

	req.Equal([]string{"alice: one", "alice: two", "alice: three"}, f.sinks["bob"].Lines())
}

func TestRouter_History_Failure_Does_Not_Block_Delivery(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob")
	f.history.EXPECT().Append(gomock.Any()).Return(errors.ErrPersistence)

	report, err := f.router.Route(context.Background(), "alice", domain.SendDirectCommand{Target: "bob", Text: "still here"})

	req.NoError(err)
	req.Equal([]string{"bob"}, report.Delivered)
	req.Equal([]string{"alice: still here"}, f.sinks["bob"].Lines())
}

func TestRouter_Quit_And_VoiceNote_Without_Payload(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice")

	_, err := f.router.Route(context.Background(), "alice", domain.QuitCommand{})
	req.NoError(err)

	_, err = f.router.Route(context.Background(), "alice", domain.SendVoiceNoteCommand{Kind: domain.TargetUser, Target: "bob"})
	req.ErrorIs(err, errors.ErrFramingState)
}

func TestRouter_RouteVoiceNote_To_User(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob")
	payload := []byte("RIFF....WAVE")
	note := domain.StoredVoiceNote{Filename: "history_audio_1_hi.wav", Path: "/tmp/history_audio_1_hi.wav", Size: int64(len(payload)), MimeType: "audio/wav"}

	// Given a store accepting the payload
	f.voiceNotes.EXPECT().Save("hi.wav", payload).Return(note, nil)
	f.history.EXPECT().Append(gomock.Cond(func(x any) bool {
		r := x.(domain.HistoryRecord)
		return r.Kind == domain.KindAudio && r.Target == "bob" &&
			r.AudioFile == note.Filename && r.MimeType == "audio/wav"
	})).Return(nil)

	// When the voice note is routed
	cmd := domain.SendVoiceNoteCommand{Kind: domain.TargetUser, Target: "bob", Filename: "hi.wav", ByteLength: int64(len(payload))}
	report, err := f.router.RouteVoiceNote(context.Background(), "alice", cmd, payload)

	// Then bob receives a reference to the stored file
	req.NoError(err)
	req.Equal([]string{"bob"}, report.Delivered)
	req.Equal([]string{"[VOICE NOTE] from alice -> bob saved as history_audio_1_hi.wav"}, f.sinks["bob"].Lines())
}

func TestRouter_RouteVoiceNote_To_Group(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob")
	f.registry.JoinGroup("team", "bob")
	note := domain.StoredVoiceNote{Filename: "history_audio_2_memo.ogg", Size: 3}

	f.voiceNotes.EXPECT().Save("memo.ogg", gomock.Any()).Return(note, nil)
	f.history.EXPECT().Append(gomock.Any()).Return(nil)

	cmd := domain.SendVoiceNoteCommand{Kind: domain.TargetGroup, Target: "team", Filename: "memo.ogg", ByteLength: 3}
	_, err := f.router.RouteVoiceNote(context.Background(), "alice", cmd, []byte("abc"))

	req.NoError(err)
	req.Equal([]string{"[VOICE NOTE] from alice -> team saved as history_audio_2_memo.ogg"}, f.sinks["bob"].Lines())
	req.Empty(f.sinks["alice"].Lines())
}

func TestRouter_RouteVoiceNote_Store_Failure(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob")

	// Given a store that cannot write, nothing is relayed or recorded
	f.voiceNotes.EXPECT().Save("hi.wav", gomock.Any()).Return(domain.StoredVoiceNote{}, stderrors.New("disk full"))

	cmd := domain.SendVoiceNoteCommand{Kind: domain.TargetUser, Target: "bob", Filename: "hi.wav", ByteLength: 1}
	_, err := f.router.RouteVoiceNote(context.Background(), "alice", cmd, []byte("x"))

	req.EqualError(err, "could not store voice note hi.wav")
	req.Empty(f.sinks["bob"].Lines())
}

func TestRouter_Notify(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, "alice", "bob")
	f.history.EXPECT().Append(recordMatcher(domain.KindSystem, "carol", domain.AllTarget, "carol has joined")).Return(nil)

	report := f.router.Notify(context.Background(), "carol", "carol has joined")

	req.Len(report.Delivered, 2)
	req.Equal([]string{"[SYSTEM] carol has joined"}, f.sinks["alice"].Lines())
}
