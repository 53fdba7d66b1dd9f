package protocol

import (
	"chat-relay/errors"
	"fmt"
)

const (
	WelcomeLine = "Welcome! Send your username:"
	ServerFull  = "ERROR: server is full"
)

func Greeting(username string) string {
	return fmt.Sprintf("Hello %s. You can use /create, /join, /msg, /gmsg, /voicenote, /quit commands.", username)
}

func System(text string) string {
	return "[SYSTEM] " + text
}

func Chat(sender, text string) string {
	return sender + ": " + text
}

func VoiceNoteNotice(sender, target, file string) string {
	return fmt.Sprintf("[VOICE NOTE] from %s -> %s saved as %s", sender, target, file)
}

func JoinedNotice(username string) string { return username + " has joined" }

func LeftNotice(username string) string { return username + " has left" }

func GroupCreated(group string) string { return "Group created: " + group }

func GroupJoined(group string) string { return "Joined group: " + group }

func UsernameTaken(username string) string {
	return fmt.Sprintf("ERROR: username %s is already taken", username)
}

// Error renders err as a reply line. Parse errors already carry their own wording.
func Error(err error) string {
	if errors.IsProtocolError(err) {
		return err.Error()
	}
	return "ERROR: " + err.Error()
}
