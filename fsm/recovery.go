package fsm

import (
	"time"

	"jeopardybot/model"
)

// recoveryTimer is the crash-recovery timer for every phase except
// AfterGame (§4.7 "Crash recovery").
const recoveryTimer = 600 * time.Second

// RecoverSnapshot rewrites a persisted snapshot's phase to its paused
// counterpart per §4.7's crash-recovery table, returning the timer
// duration the caller should arm; the explanatory notice to post to
// the play chat is RecoveryNotice. Touches nothing but snap, so it can
// be unit tested without a running Game actor.
func RecoverSnapshot(snap *model.GameSnapshot) time.Duration {
	switch snap.Phase {
	case model.PhaseQuestion:
		snap.Phase = model.PhaseAfterQuestion
		snap.Paused = true
		snap.HasAcknowledged = false
		return recoveryTimer
	case model.PhaseAnswer:
		if snap.CurrentAnswerer != 0 {
			snap.AnsweredAlready = append(snap.AnsweredAlready, snap.CurrentAnswerer)
			snap.CurrentAnswerer = 0
		}
		snap.Phase = model.PhaseAfterQuestion
		snap.Paused = true
		snap.HasAcknowledged = false
		return recoveryTimer
	case model.PhaseAfterGame:
		return afterGameTimer
	default:
		snap.Paused = true
		return recoveryTimer
	}
}

// RecoveryNotice is the explanatory message posted to the play chat on
// every crash-recovered game, regardless of which phase it resumes
// into (§4.7).
const RecoveryNotice = "Bot restarted, game paused."
