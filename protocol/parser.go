// Package protocol implements the line-oriented relay protocol: command
// parsing, the mixed text/binary framing used by voice notes and the
// server-side line formats.
package protocol

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	usageCreate    = "/create <group>"
	usageJoin      = "/join <group>"
	usageMsg       = "/msg <user> <message>"
	usageGmsg      = "/gmsg <group> <message>"
	usageVoiceNote = "/voicenote <user|group> <target> <filename> <bytes>"
)

// ParseLine turns one protocol line (without its trailing newline) into a command.
// Lines that do not start with '/' are broadcasts. Errors are *errors.ParseError.
func ParseLine(line string) (domain.Command, error) {
	if !strings.HasPrefix(line, "/") {
		return domain.BroadcastCommand{Text: line}, nil
	}

	keyword := splitTokens(line, 2)
	cmd := strings.ToLower(keyword[0])

	switch cmd {
	case "/create":
		tokens := splitTokens(line, 3)
		if len(tokens) < 2 {
			return nil, usageError(cmd, usageCreate)
		}
		return domain.CreateGroupCommand{Group: tokens[1]}, nil
	case "/join":
		tokens := splitTokens(line, 3)
		if len(tokens) < 2 {
			return nil, usageError(cmd, usageJoin)
		}
		return domain.JoinGroupCommand{Group: tokens[1]}, nil
	case "/msg":
		tokens := splitTokens(line, 3)
		if len(tokens) < 3 {
			return nil, usageError(cmd, usageMsg)
		}
		return domain.SendDirectCommand{Target: tokens[1], Text: tokens[2]}, nil
	case "/gmsg":
		tokens := splitTokens(line, 3)
		if len(tokens) < 3 {
			return nil, usageError(cmd, usageGmsg)
		}
		return domain.SendGroupCommand{Group: tokens[1], Text: tokens[2]}, nil
	case "/voicenote":
		return parseVoiceNote(cmd, line)
	case "/quit":
		return domain.QuitCommand{}, nil
	default:
		return nil, &errors.ParseError{Command: keyword[0], Err: errors.ErrUnknownCommand}
	}
}

func parseVoiceNote(cmd, line string) (domain.Command, error) {
	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return nil, usageError(cmd, usageVoiceNote)
	}

	kind := domain.TargetKind(strings.ToLower(tokens[1]))
	if kind != domain.TargetUser && kind != domain.TargetGroup {
		return nil, &errors.ParseError{Command: cmd, Usage: usageVoiceNote, Err: errors.ErrInvalidTargetKind}
	}

	length, err := strconv.ParseInt(tokens[4], 10, 64)
	if err != nil || length < 0 {
		return nil, &errors.ParseError{
			Command: cmd,
			Usage:   usageVoiceNote,
			Err:     fmt.Errorf("%w: %q", errors.ErrInvalidByteLength, tokens[4]),
		}
	}

	return domain.SendVoiceNoteCommand{
		Kind:       kind,
		Target:     tokens[2],
		Filename:   tokens[3],
		ByteLength: length,
	}, nil
}

func usageError(cmd, usage string) error {
	return &errors.ParseError{Command: cmd, Usage: usage, Err: errors.ErrUsage}
}

// splitTokens splits s on runs of blanks into at most n tokens.
// The last token keeps the remainder of the line, inner spacing included.
func splitTokens(s string, n int) []string {
	var tokens []string
	for len(tokens) < n-1 {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return tokens
		}
		idx := strings.IndexAny(s, " \t")
		if idx < 0 {
			return append(tokens, s)
		}
		tokens = append(tokens, s[:idx])
		s = s[idx:]
	}
	rest := strings.TrimLeft(s, " \t")
	if rest == "" {
		return tokens
	}
	return append(tokens, rest)
}
