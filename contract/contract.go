//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself, the supervisor restarts it on panic.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker
// for logging during supervision.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Sink is the outbound side of a live session.
// Deliver must never block the caller on the recipient's socket.
type Sink interface {
	Deliver(line string) error
	Close()
}

// IRegistry is the single source of truth for who is online and which
// groups they belong to. Every method is atomic.
type IRegistry interface {
	Register(username string, sink Sink, greeting string) error
	Unregister(username string)
	Lookup(username string) (Sink, bool)
	BroadcastAll(line string) domain.DeliveryReport
	Online() []string

	CreateGroup(name string)
	JoinGroup(name, username string) bool
	MembersOf(name string) []string
	RemoveMember(username string)
	SinksForGroup(name string) (map[string]Sink, []string)
}

type IHistoryRepository interface {
	Append(record domain.HistoryRecord) error
	List(limit *int) ([]domain.HistoryRecord, error)
	ListFor(target string, limit *int) ([]domain.HistoryRecord, error)
}

type IVoiceNoteStore interface {
	Save(originalName string, payload []byte) (domain.StoredVoiceNote, error)
}

type IRouter interface {
	Route(ctx context.Context, sender string, cmd domain.Command) (domain.DeliveryReport, error)
	RouteVoiceNote(ctx context.Context, sender string, cmd domain.SendVoiceNoteCommand, payload []byte) (domain.DeliveryReport, error)
	Notify(ctx context.Context, sender, text string) domain.DeliveryReport
}
