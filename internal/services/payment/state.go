package payment

import "log/slog"

// State состояние попытки покупки.
type State string

const (
	StateQuoted          State = "QUOTED"
	StatePreauthPending  State = "PREAUTH_PENDING"
	StatePreauthApproved State = "PREAUTH_APPROVED"
	StateConfirmed       State = "CONFIRMED"
	StateRejected        State = "REJECTED"
)

type transition struct {
	from State
	to   State
}

var validTransitions = map[transition]bool{
	{StateQuoted, StatePreauthPending}:          true,
	{StatePreauthPending, StatePreauthApproved}: true,
	{StatePreauthPending, StateRejected}:        true,
	{StatePreauthApproved, StateConfirmed}:      true,
	{StatePreauthApproved, StateRejected}:       true, // payload не прошёл проверку при подтверждении
}

// CanTransition проверяет, допустим ли переход from -> to.
func CanTransition(from, to State) bool {
	return validTransitions[transition{from, to}]
}

// advance переводит попытку в состояние to. Недопустимый переход логируется,
// попытка остаётся в состоянии from.
func advance(log *slog.Logger, from, to State) State {
	if !CanTransition(from, to) {
		log.Error("invalid payment state transition",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return from
	}
	return to
}
