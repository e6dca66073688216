package model

// statusEdges lists every legal status transition. Anything missing here is
// rejected with an IllegalTransitionError.
var statusEdges = map[RequestStatus][]RequestStatus{
	StatusOpen:     {StatusAssigned, StatusCompleted, StatusCancelled},
	StatusAssigned: {StatusCompleted, StatusCancelled},
}

// broadcastEdges is the matcher substate machine. expired -> broadcasting is a rebroadcast.
var broadcastEdges = map[BroadcastStatus][]BroadcastStatus{
	BroadcastIdle:         {BroadcastBroadcasting},
	BroadcastBroadcasting: {BroadcastAccepted, BroadcastExpired},
	BroadcastExpired:      {BroadcastBroadcasting},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range statusEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an IllegalTransitionError for edges outside the table.
func CheckTransition(from, to RequestStatus) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: string(from), To: string(to)}
	}
	return nil
}

// SourcesFor returns the statuses from which target can be reached, in table order.
func SourcesFor(target RequestStatus) []RequestStatus {
	var sources []RequestStatus
	for _, from := range []RequestStatus{StatusOpen, StatusAssigned, StatusCompleted, StatusCancelled} {
		if CanTransition(from, target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// CanBroadcastTransition reports whether from -> to is a legal broadcast edge.
func CanBroadcastTransition(from, to BroadcastStatus) bool {
	for _, next := range broadcastEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BroadcastSourcesFor returns the broadcast states from which target can be reached.
func BroadcastSourcesFor(target BroadcastStatus) []BroadcastStatus {
	var sources []BroadcastStatus
	for _, from := range []BroadcastStatus{BroadcastIdle, BroadcastBroadcasting, BroadcastAccepted, BroadcastExpired} {
		if CanBroadcastTransition(from, target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// ToStrings converts a status list for use as a postgres text[] parameter.
func ToStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
