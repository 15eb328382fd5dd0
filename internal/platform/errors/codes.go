// Package errors provides structured error handling for the game core.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Turn/state errors
	CodeNotYourTurn      Code = "NOT_YOUR_TURN"
	CodeInvalidGameState Code = "INVALID_GAME_STATE"
	CodeIllegalMove      Code = "ILLEGAL_MOVE"
	CodeStaleWrite       Code = "STALE_WRITE"

	// Room lifecycle errors
	CodeRoomNotFound       Code = "ROOM_NOT_FOUND"
	CodeRoomFull           Code = "ROOM_FULL"
	CodeRoomNotJoinable    Code = "ROOM_NOT_JOINABLE"
	CodeRoomAlreadyStarted Code = "ROOM_ALREADY_STARTED"
	CodeRoomQuotaNotMet    Code = "ROOM_QUOTA_NOT_MET"
	CodeSeatCountInvalid   Code = "SEAT_COUNT_INVALID"
	CodeModeInvalid        Code = "MODE_INVALID"

	// Player errors
	CodePlayerNotSeated     Code = "PLAYER_NOT_SEATED"
	CodePlayerAlreadySeated Code = "PLAYER_ALREADY_SEATED"
	CodePlayerEscaped       Code = "PLAYER_ESCAPED"

	// Dice errors
	CodeDiceOutOfRange Code = "DICE_OUT_OF_RANGE"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// HTTPStatus maps domain codes to HTTP status codes for the REST surface.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad input
	case CodeIllegalMove,
		CodeDiceOutOfRange,
		CodeSeatCountInvalid,
		CodeModeInvalid:
		return 400

	// State doesn't allow the operation
	case CodeNotYourTurn,
		CodeInvalidGameState,
		CodeRoomFull,
		CodeRoomNotJoinable,
		CodeRoomAlreadyStarted,
		CodeRoomQuotaNotMet,
		CodePlayerNotSeated,
		CodePlayerAlreadySeated,
		CodePlayerEscaped:
		return 422

	// Retryable conflict
	case CodeStaleWrite,
		CodeAlreadyExists:
		return 409

	// Missing resource
	case CodeRoomNotFound,
		CodeNotFound:
		return 404

	default:
		return 500
	}
}
