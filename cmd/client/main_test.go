package main

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/protocol"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendFile_Frames_A_Voice_Note(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "memo.ogg")
	data := []byte("OggS\n\x00binary")
	req.NoError(os.WriteFile(path, data, 0o600))
	var conn bytes.Buffer

	// When the user sends a file to a group
	req.True(isSendFile("/sendfile group team " + path))
	req.NoError(sendFile(&conn, "/sendfile GROUP team "+path))

	// Then the relay sees a regular voice note header and payload
	framer := protocol.NewFramer(&conn)
	header, err := framer.ReadLine()
	req.NoError(err)
	cmd, err := protocol.ParseLine(header)
	req.NoError(err)
	req.Equal(domain.SendVoiceNoteCommand{
		Kind: domain.TargetGroup, Target: "team", Filename: "memo.ogg", ByteLength: int64(len(data)),
	}, cmd)
	req.NoError(framer.ExpectPayload(int64(len(data))))
	payload, err := framer.ReadPayload()
	req.NoError(err)
	req.Equal(data, payload)
}

func TestSendFile_Usage(t *testing.T) {
	req := require.New(t)
	var conn bytes.Buffer

	req.Error(sendFile(&conn, "/sendfile bob"))
	req.Error(sendFile(&conn, "/sendfile room bob file.wav"))
	req.Error(sendFile(&conn, "/sendfile user bob /does/not/exist.wav"))
	req.Zero(conn.Len())
	req.False(isSendFile("/msg bob hi"))
}

func TestReceive_Renders_Lines(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer

	err := receive(strings.NewReader("[SYSTEM] bob has joined\nalice: hi\n"), &out, false)

	req.NoError(err)
	req.Equal("[SYSTEM] bob has joined\nalice: hi\n", out.String())
}

func TestRender_Colours(t *testing.T) {
	req := require.New(t)

	req.Equal("alice: hi", render("alice: hi", true))
	req.Equal("[SYSTEM] x", render("[SYSTEM] x", false))
	req.Contains(render("ERROR: nope", true), "ERROR: nope")
}
