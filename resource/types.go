package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Ownership tags a handle as owned or borrowed.
type Ownership uint8

const (
	// Own means the holder is responsible for the single drop.
	Own Ownership = iota
	// Borrowed means the holder may use the resource but never drops it.
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}
	return "own"
}

// EventType enumerates resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventTaken
	EventBorrowed
	EventBorrowReturned
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventTaken:
		return "taken"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow-returned"
	}
	return "unknown"
}

// Event represents a resource lifecycle event.
type Event struct {
	Value     any
	Handle    Handle
	TypeID    uint32
	Type      EventType
	Ownership Ownership
}

// Observer receives notifications about resource lifecycle events.
// Observers are called synchronously, outside the table lock.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by resource values that need cleanup.
type Dropper interface {
	Drop()
}
