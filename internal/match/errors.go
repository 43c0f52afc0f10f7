package match

import "errors"

var (
	ErrInvalidGuess       = errors.New("guess is incomplete or uses unknown colors")
	ErrBoardComplete      = errors.New("board is complete")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrStaleState         = errors.New("state is not newer than the board")
	ErrNoMatch            = errors.New("no match in progress")
	ErrNotPlaying         = errors.New("match is not being played")
	ErrNotYourTurn        = errors.New("it is not your turn")
	ErrNotAwaiting        = errors.New("no vs-human match is waiting for this opponent")
	ErrMatchReplaced      = errors.New("match was replaced")
	ErrStopped            = errors.New("orchestrator stopped")
)
