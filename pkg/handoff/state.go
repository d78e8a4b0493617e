package handoff

// State is the lifecycle state of one connection on the compositor side.
type State uint8

const (
    Disconnected State = iota
    Connecting
    Streaming
    Closing
)

func (s State) String() string {
    switch s {
    case Connecting:
        return "connecting"
    case Streaming:
        return "streaming"
    case Closing:
        return "closing"
    default:
        return "disconnected"
    }
}

// next reports whether moving from s to to is a legal transition.
func (s State) next(to State) bool {
    switch s {
    case Disconnected:
        return to == Connecting
    case Connecting:
        return to == Streaming || to == Disconnected
    case Streaming:
        return to == Closing
    case Closing:
        return to == Disconnected
    }
    return false
}
