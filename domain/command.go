// Package domain contains core concepts of the relay.
// This file defines the commands a connected user can issue.
// No network or storage logic should be added here.
package domain

// Command is the parsed form of one protocol line.
type Command interface {
	Name() string
}

// TargetKind tells whether a voice note is addressed to a user or a group.
type TargetKind string

const (
	TargetUser  TargetKind = "user"
	TargetGroup TargetKind = "group"
)

// AllTarget is the history target used for broadcasts and system notices.
const AllTarget = "ALL"

type CreateGroupCommand struct {
	Group string
}

func (CreateGroupCommand) Name() string { return "/create" }

type JoinGroupCommand struct {
	Group string
}

func (JoinGroupCommand) Name() string { return "/join" }

type SendDirectCommand struct {
	Target string
	Text   string
}

func (SendDirectCommand) Name() string { return "/msg" }

type SendGroupCommand struct {
	Group string
	Text  string
}

func (SendGroupCommand) Name() string { return "/gmsg" }

// SendVoiceNoteCommand announces ByteLength raw bytes following the command line.
type SendVoiceNoteCommand struct {
	Kind       TargetKind
	Target     string
	Filename   string
	ByteLength int64
}

func (SendVoiceNoteCommand) Name() string { return "/voicenote" }

type BroadcastCommand struct {
	Text string
}

func (BroadcastCommand) Name() string { return "broadcast" }

// QuitCommand asks the server to close the connection.
type QuitCommand struct{}

func (QuitCommand) Name() string { return "/quit" }
