package ismp

import "github.com/certen/independant-validator/pkg/statemachine"

// EventKind tags which family of ISMP event was observed on a chain.
type EventKind uint8

const (
	EventPostRequest EventKind = iota
	EventPostResponse
	EventGetRequest
	EventTimeoutPost
	EventTimeoutPostResponse
	EventTimeoutGet
)

// Event is a single ISMP event observed on a chain via
// Provider.QueryISMPEvents, already partitioned by EventKind by the
// Messaging Relay Engine (spec.md §4.6 step b).
type Event struct {
	Kind        EventKind
	Height      uint64
	Request     *PostRequest
	Response    *PostResponse
	GetRequest  *GetRequest
	StateMachine statemachine.StateMachine
}

// Partition groups a flat event list into the five buckets the
// Messaging Relay Engine processes independently.
type Partition struct {
	Requests         []Event
	Responses        []Event
	TimeoutPosts     []Event
	TimeoutPostResponses []Event
	TimeoutGets      []Event
}

// PartitionEvents splits events by kind, preserving relative order
// within each bucket.
func PartitionEvents(events []Event) Partition {
	var p Partition
	for _, e := range events {
		switch e.Kind {
		case EventPostRequest:
			p.Requests = append(p.Requests, e)
		case EventPostResponse, EventGetRequest:
			p.Responses = append(p.Responses, e)
		case EventTimeoutPost:
			p.TimeoutPosts = append(p.TimeoutPosts, e)
		case EventTimeoutPostResponse:
			p.TimeoutPostResponses = append(p.TimeoutPostResponses, e)
		case EventTimeoutGet:
			p.TimeoutGets = append(p.TimeoutGets, e)
		}
	}
	return p
}

// Empty reports whether every bucket in the partition is empty — the
// "no submission, no error" boundary case (spec.md §8).
func (p Partition) Empty() bool {
	return len(p.Requests) == 0 && len(p.Responses) == 0 &&
		len(p.TimeoutPosts) == 0 && len(p.TimeoutPostResponses) == 0 &&
		len(p.TimeoutGets) == 0
}
