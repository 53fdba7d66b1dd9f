package test

import (
	"bufio"
	"chat-relay/domain"
	relaygrpc "chat-relay/infrastructure/grpc"
	"chat-relay/infrastructure/tcp"
	"chat-relay/protocol"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/storage"
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func connect(t *testing.T, addr, username string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	c := &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
	c.expect(protocol.WelcomeLine)
	c.send(username)
	c.expect(protocol.Greeting(username))
	return c
}

func (c *client) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

// expect returns the skipped lines, the wanted one excluded.
func (c *client) expect(want string) []string {
	c.t.Helper()
	var seen []string
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		line, err := c.reader.ReadString('\n')
		if err != nil {
			c.t.Fatalf("waiting for %q, got %q then %v", want, seen, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == want || (strings.HasSuffix(want, "*") && strings.HasPrefix(line, strings.TrimSuffix(want, "*"))) {
			return append(seen, line)
		}
		seen = append(seen, line)
	}
}

func Test_Scenario(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// 1. Storage
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	voiceDir := t.TempDir()
	voiceNotes, err := storage.NewVoiceNoteStore(voiceDir, log)
	req.NoError(err)
	history := repositories.NewHistoryRepository(db, log)

	// 2. Relay
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry, history, voiceNotes)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	server := tcp.NewServer(log, listener, registry, router, 16, tcp.SessionConfig{
		BufferSize:     64,
		MaxPayload:     1 << 20,
		PayloadTimeout: time.Second,
		WriteTimeout:   time.Second,
	})
	healthListener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	health := relaygrpc.NewHealthServer(log, healthListener)

	supervisor := workers.NewSupervisor(log, 50*time.Millisecond)
	supervisor.Add(server, health, workers.NewStatsWorker(log, registry, server.ActiveConnections, 20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(done)
	}()
	health.SetServing(true)
	t.Cleanup(func() {
		cancel()
		<-done
		_ = db.Close()
	})

	// 3. Health probe
	conn, err := grpc.NewClient(health.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()
	req.Eventually(func() bool {
		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: relaygrpc.RelayService})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 20*time.Millisecond)

	// 4. Alice and Bob chat
	addr := server.Addr().String()
	alice := connect(t, addr, "alice")
	alice.expect("[SYSTEM] alice has joined")
	bob := connect(t, addr, "bob")
	alice.expect("[SYSTEM] bob has joined")

	alice.send("/msg bob hi bob")
	bob.expect("alice: hi bob")

	bob.send("/create team")
	bob.expect("Group created: team")
	bob.send("/join team")
	bob.expect("Joined group: team")
	alice.send("/join team")
	alice.expect("Joined group: team")
	alice.send("/gmsg team standup")
	bob.expect("alice: standup")
	alice.expect("alice: standup")

	// 5. Voice note to the group, followed by a regular line
	payload := []byte("OggS\x00\x02\n\nbinary\r\n")
	req.NoError(protocol.WriteVoiceNote(alice.conn, "group", "team", "memo.ogg", payload))
	alice.send("everyone done?")
	lines := bob.expect("[VOICE NOTE] from alice -> team saved as *")
	notice := lines[len(lines)-1]
	bob.expect("[SYSTEM] alice: everyone done?")

	stored, err := os.ReadFile(filepath.Join(voiceDir, strings.TrimPrefix(notice, "[VOICE NOTE] from alice -> team saved as ")))
	req.NoError(err)
	req.Equal(payload, stored)

	// 6. Bob leaves
	bob.send("/quit")
	alice.expect("[SYSTEM] bob has left")
	req.Eventually(func() bool { return len(registry.Online()) == 1 }, time.Second, 10*time.Millisecond)
	req.Equal([]string{"alice"}, registry.MembersOf("team"))

	// 7. History recorded every attempt in order
	records, err := history.List(nil)
	req.NoError(err)
	kinds := lo.Map(records, func(r domain.HistoryRecord, _ int) domain.RecordKind { return r.Kind })
	req.Equal([]domain.RecordKind{
		domain.KindSystem, // alice has joined
		domain.KindSystem, // bob has joined
		domain.KindText,   // /msg
		domain.KindText,   // /gmsg
		domain.KindAudio,
		domain.KindSystem, // broadcast
		domain.KindSystem, // bob has left
	}, kinds)

	team, err := history.ListFor("team", nil)
	req.NoError(err)
	req.Len(team, 2)
	req.Equal("standup", team[0].Content)
	req.Equal(domain.KindAudio, team[1].Kind)
	req.NotEmpty(team[1].MimeType)
}
