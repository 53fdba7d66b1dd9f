package domain

import (
	"fmt"
	"sort"
	"strings"
)

// DeliveryReport aggregates the outcome of one fan-out, per recipient.
// Dropped recipients were not connected, Failed ones refused the line.
type DeliveryReport struct {
	Delivered []string
	Dropped   []string
	Failed    map[string]error
}

func (r *DeliveryReport) AddDelivered(username string) {
	r.Delivered = append(r.Delivered, username)
}

func (r *DeliveryReport) AddDropped(username string) {
	r.Dropped = append(r.Dropped, username)
}

func (r *DeliveryReport) AddFailed(username string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[username] = err
}

func (r DeliveryReport) OK() bool {
	return len(r.Failed) == 0
}

func (r DeliveryReport) String() string {
	failed := make([]string, 0, len(r.Failed))
	for username, err := range r.Failed {
		failed = append(failed, fmt.Sprintf("%s(%v)", username, err))
	}
	sort.Strings(failed)
	return fmt.Sprintf("delivered=%d dropped=[%s] failed=[%s]",
		len(r.Delivered), strings.Join(r.Dropped, ","), strings.Join(failed, ","))
}
