package domain

// IsValidStatusTransition is the single source of truth for legal
// lifecycle movement. Both the webhook path and the manual sync path go
// through it, which is what makes racing reconciliations safe: re-applying
// the current status is a no-op, and the lifecycle only ratchets forward.
//
// Rules, in priority order:
//  1. same status is always valid (safe re-delivery)
//  2. failed and cancelled are terminal, nothing leaves them
//  3. refunded is reachable only from captured
//  4. failed/cancelled are reachable from any non-terminal status
//  5. authorized is reachable only from created or requires_action
//  6. captured is reachable only from authorized
//  7. everything else is invalid
func IsValidStatusTransition(current, next PaymentStatus) bool {
	if current == next {
		return true
	}
	if current == StatusFailed || current == StatusCancelled {
		return false
	}
	if next == StatusRefunded {
		return current == StatusCaptured
	}
	if next == StatusFailed || next == StatusCancelled {
		// refunded is terminal as well, it just sits behind captured
		return current != StatusRefunded
	}
	if next == StatusAuthorized {
		return current == StatusCreated || current == StatusRequiresAction
	}
	if next == StatusCaptured {
		return current == StatusAuthorized
	}
	return false
}
