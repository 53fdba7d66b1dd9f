// Package runtime holds the shared state of the relay and the router that
// resolves every command against it. It contains no network code.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/protocol"
	"context"
	"fmt"
	"log/slog"
	"time"
)

var _ contract.IRouter = (*Router)(nil)

// Router delivers commands to their recipients and records them in history.
// Delivery is fire-and-forget: the history records the attempt, not the
// acknowledgement, and an offline target is silently dropped for the sender.
type Router struct {
	log        *slog.Logger
	registry   contract.IRegistry
	history    contract.IHistoryRepository
	voiceNotes contract.IVoiceNoteStore
	now        func() time.Time
}

func NewRouter(log *slog.Logger, registry contract.IRegistry,
	history contract.IHistoryRepository, voiceNotes contract.IVoiceNoteStore) *Router {
	return &Router{
		log:        log,
		registry:   registry,
		history:    history,
		voiceNotes: voiceNotes,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Route handles every command except voice notes, which need their payload.
func (r *Router) Route(ctx context.Context, sender string, cmd domain.Command) (domain.DeliveryReport, error) {
	var report domain.DeliveryReport

	switch c := cmd.(type) {
	case domain.CreateGroupCommand:
		r.registry.CreateGroup(c.Group)
		report = r.reply(sender, protocol.GroupCreated(c.Group))
	case domain.JoinGroupCommand:
		if !r.registry.JoinGroup(c.Group, sender) {
			r.log.Debug("Already a member", "group", c.Group, "username", sender)
		}
		report = r.reply(sender, protocol.GroupJoined(c.Group))
	case domain.SendDirectCommand:
		report = r.deliverToUser(c.Target, protocol.Chat(sender, c.Text))
		r.record(ctx, domain.NewTextRecord(sender, c.Target, c.Text, r.now()))
	case domain.SendGroupCommand:
		report = r.deliverToGroup(c.Group, protocol.Chat(sender, c.Text))
		r.record(ctx, domain.NewTextRecord(sender, c.Group, c.Text, r.now()))
	case domain.BroadcastCommand:
		report = r.registry.BroadcastAll(protocol.System(protocol.Chat(sender, c.Text)))
		r.record(ctx, domain.NewSystemRecord(sender, c.Text, r.now()))
	case domain.SendVoiceNoteCommand:
		return report, fmt.Errorf("%w: voice note routed without payload", errors.ErrFramingState)
	case domain.QuitCommand:
		return report, nil
	default:
		return report, &errors.ParseError{Command: cmd.Name(), Err: errors.ErrUnknownCommand}
	}

	r.logReport(ctx, sender, cmd.Name(), report)
	return report, nil
}

// RouteVoiceNote stores the payload read by the session and relays a
// reference notice to the target exactly as a text message would be.
func (r *Router) RouteVoiceNote(ctx context.Context, sender string,
	cmd domain.SendVoiceNoteCommand, payload []byte) (domain.DeliveryReport, error) {
	var report domain.DeliveryReport

	note, err := r.voiceNotes.Save(cmd.Filename, payload)
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to store voice note", "username", sender, "file", cmd.Filename, "error", err)
		return report, fmt.Errorf("could not store voice note %s", cmd.Filename)
	}
	r.log.InfoContext(ctx, "Voice note stored",
		"username", sender, "file", note.Filename, "bytes", note.Size, "mime", note.MimeType)

	notice := protocol.VoiceNoteNotice(sender, cmd.Target, note.Filename)
	switch cmd.Kind {
	case domain.TargetGroup:
		report = r.deliverToGroup(cmd.Target, notice)
	default:
		report = r.deliverToUser(cmd.Target, notice)
	}
	r.record(ctx, domain.NewAudioRecord(sender, cmd.Target, note, r.now()))
	r.logReport(ctx, sender, cmd.Name(), report)
	return report, nil
}

// Notify broadcasts a system notice such as a join or a leave.
func (r *Router) Notify(ctx context.Context, sender, text string) domain.DeliveryReport {
	report := r.registry.BroadcastAll(protocol.System(text))
	r.record(ctx, domain.NewSystemRecord(sender, text, r.now()))
	r.logReport(ctx, sender, "notice", report)
	return report
}

func (r *Router) reply(sender, line string) domain.DeliveryReport {
	return r.deliverToUser(sender, line)
}

func (r *Router) deliverToUser(username, line string) domain.DeliveryReport {
	var report domain.DeliveryReport
	sink, ok := r.registry.Lookup(username)
	if !ok {
		report.AddDropped(username)
		return report
	}
	if err := sink.Deliver(line); err != nil {
		report.AddFailed(username, err)
		return report
	}
	report.AddDelivered(username)
	return report
}

// deliverToGroup writes to every live member, the sender included when it is one.
func (r *Router) deliverToGroup(group, line string) domain.DeliveryReport {
	var report domain.DeliveryReport
	sinks, absent := r.registry.SinksForGroup(group)
	for username, sink := range sinks {
		if err := sink.Deliver(line); err != nil {
			report.AddFailed(username, err)
			continue
		}
		report.AddDelivered(username)
	}
	for _, username := range absent {
		report.AddDropped(username)
	}
	return report
}

// record appends to history. A persistence failure never affects delivery.
func (r *Router) record(ctx context.Context, record domain.HistoryRecord) {
	if err := r.history.Append(record); err != nil {
		r.log.ErrorContext(ctx, "History append failed",
			"kind", record.Kind, "target", record.Target, "error", err)
	}
}

func (r *Router) logReport(ctx context.Context, sender, command string, report domain.DeliveryReport) {
	switch {
	case !report.OK():
		r.log.WarnContext(ctx, "Delivery failed for some recipients",
			"username", sender, "command", command, "report", report.String())
	case len(report.Dropped) > 0:
		r.log.DebugContext(ctx, "Delivery dropped",
			"username", sender, "command", command, "dropped", report.Dropped, "error", errors.ErrTargetUnavailable)
	default:
		r.log.DebugContext(ctx, "Delivered", "username", sender, "command", command, "recipients", len(report.Delivered))
	}
}
