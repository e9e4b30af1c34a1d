package fsm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jeopardybot/model"
	"jeopardybot/store"
)

func (g *Game) onTimer(ctx context.Context) {
	switch g.snap.Phase {
	case model.PhaseBeforeGame:
		g.tickBeforeGame(ctx)
	case model.PhaseBeforeTopic:
		g.enterTopicOrSettle(ctx)
	case model.PhaseBeforeFirstQuestion:
		g.toBeforeQuestion(ctx)
	case model.PhaseBeforeQuestion:
		g.toQuestion(ctx)
	case model.PhaseQuestion:
		g.closeQuestion(ctx, nil)
	case model.PhaseAnswer:
		g.resolveAnswer(ctx, g.snap.CurrentAnswerer, false)
	case model.PhaseAfterQuestion:
		g.settleQuestion(ctx)
	case model.PhaseSpecialScore:
		g.toBeforeQuestion(ctx)
	case model.PhaseAfterGame:
		g.finishEpilogue(ctx)
	}
}

// tickBeforeGame implements transition 1's per-minute countdown path:
// decrement minutes_left; once it would reach 1, only proceed if every
// player is present, else keep waiting one more minute.
func (g *Game) tickBeforeGame(ctx context.Context) {
	if g.snap.MinutesLeft > 1 {
		g.snap.MinutesLeft--
		g.persist()
		g.scheduleTimer(ctx, beforeGameTick)
		return
	}
	if !g.allPresent() {
		g.scheduleTimer(ctx, beforeGameTick)
		return
	}
	g.announceGameStart(ctx)
}

// announceGameStart implements transition 2.
func (g *Game) announceGameStart(ctx context.Context) {
	var names []string
	for _, p := range g.snap.Participants {
		names = append(names, p.User.DisplayName)
	}
	msg := fmt.Sprintf("<b>%s</b>\n%s\nPlayers: %s\nTopics: %s",
		g.pkg.Title, g.pkg.Description, strings.Join(names, ", "), topicList(g.pkg, g.snap.TopicIndices))
	for _, chat := range g.snap.SourceChats {
		g.send(ctx, chat, msg, model.KeyboardNone)
	}
	g.snap.Phase = model.PhaseBeforeTopic
	g.snap.CursorTopic = 0
	g.persist()
	g.scheduleTimer(ctx, beforeTopicTimer)
}

func topicList(pkg *model.TopicPackage, indices []int) string {
	var names []string
	for _, idx := range indices {
		if idx < len(pkg.Topics) {
			names = append(names, pkg.Topics[idx].Name)
		}
	}
	return strings.Join(names, ", ")
}

// enterTopicOrSettle implements transition 3.
func (g *Game) enterTopicOrSettle(ctx context.Context) {
	if g.snap.CursorTopic >= len(g.snap.TopicIndices) {
		g.enterAfterGame(ctx, false)
		return
	}
	remaining := len(g.snap.TopicIndices) - g.snap.CursorTopic
	topic := g.pkg.Topics[g.snap.TopicIndices[g.snap.CursorTopic]]
	for _, chat := range g.snap.SourceChats {
		g.send(ctx, chat, remainingTopicsAnnouncement(remaining, topic.Name), model.KeyboardNone)
	}
	g.snap.Phase = model.PhaseBeforeFirstQuestion
	g.snap.CursorQuestion = 0
	g.persist()
	g.scheduleTimer(ctx, beforeFirstQTimer)
}

// toBeforeQuestion implements transition 4's first half and the
// SpecialScore resume path.
func (g *Game) toBeforeQuestion(ctx context.Context) {
	g.send(ctx, g.snap.PlayChat, "Attention, question.", model.KeyboardPlus)
	g.snap.Phase = model.PhaseBeforeQuestion
	g.persist()
	g.scheduleTimer(ctx, beforeQuestionTimer)
}

// toQuestion implements transition 4's second half.
func (g *Game) toQuestion(ctx context.Context) {
	q := g.currentQuestion()
	id := g.send(ctx, g.snap.PlayChat, q.Prompt, model.KeyboardNone)
	g.snap.PromptMessageID = id
	g.snap.AnsweredAlready = nil
	g.snap.Phase = model.PhaseQuestion
	g.persist()
	g.scheduleTimer(ctx, questionFirstTimer)
}

// onQuestionMessage implements transition 5's message half.
func (g *Game) onQuestionMessage(ctx context.Context, userID int64, text string) {
	if text != "+" {
		return
	}
	if _, participant := g.snap.Participants[userID]; !participant {
		return
	}
	if containsUser(g.snap.AnsweredAlready, userID) {
		return
	}
	if userID == g.snap.CurrentAnswerer {
		return
	}
	g.snap.CurrentAnswerer = userID
	g.snap.Phase = model.PhaseAnswer
	if err := g.bot.Edit(ctx, g.snap.PlayChat, g.snap.PromptMessageID, "(hidden)"); err != nil {
		g.log.Warn("fsm: hide question prompt failed", zap.Error(err))
	}
	g.send(ctx, g.snap.PlayChat, "Your answer?", model.KeyboardRemove)
	g.persist()
	g.scheduleTimer(ctx, answerTimer)
}

// revealAnswer renders the authoritative answer, any other accepted
// variants, and the author's comment if one was given (§3 Question.Comment).
// Grounded on the original's Question::display_answers, which appends the
// comment after every accepted answer once the question has been settled.
func revealAnswer(q model.Question) string {
	if len(q.AcceptedAnswers) == 0 {
		return ""
	}
	reveal := fmt.Sprintf("Correct answer: %s", q.AcceptedAnswers[0])
	for _, alt := range q.AcceptedAnswers[1:] {
		reveal += fmt.Sprintf("\nAlso accepted: %s", alt)
	}
	if q.Comment != "" {
		reveal += fmt.Sprintf("\nComment: %s", q.Comment)
	}
	return reveal
}

// closeQuestion implements transition 5's timer half and is reused by
// resolveAnswer's forced-stop path.
func (g *Game) closeQuestion(ctx context.Context, correct *int64) {
	q := g.currentQuestion()
	reveal := "No one answered in time."
	if ans := revealAnswer(q); ans != "" {
		reveal = ans
	}
	g.send(ctx, g.snap.PlayChat, reveal, model.KeyboardYesNoPause)
	g.snap.Phase = model.PhaseAfterQuestion
	g.snap.Paused = false
	if correct != nil {
		g.snap.AcknowledgedUser = *correct
		g.snap.HasAcknowledged = true
	} else {
		g.snap.HasAcknowledged = false
	}
	g.persist()
	g.scheduleTimer(ctx, afterQuestionTimer)
}

// onAnswerMessage implements transition 6's message half.
func (g *Game) onAnswerMessage(ctx context.Context, userID int64, text string) {
	if userID != g.snap.CurrentAnswerer {
		return
	}
	if text == "+" {
		return
	}
	q := g.currentQuestion()
	if checkAnswer(text, q.AcceptedAnswers) {
		g.snap.AnsweredAlready = append(g.snap.AnsweredAlready, userID)
		correct := userID
		msg := fmt.Sprintf("%s answered correctly: %s", g.participantName(userID), text)
		if ans := revealAnswer(q); ans != "" {
			msg += "\n" + ans
		}
		g.send(ctx, g.snap.PlayChat, msg, model.KeyboardYesNoPause)
		g.snap.Phase = model.PhaseAfterQuestion
		g.snap.Paused = false
		g.snap.AcknowledgedUser = correct
		g.snap.HasAcknowledged = true
		g.persist()
		g.scheduleTimer(ctx, afterQuestionTimer)
		return
	}
	g.resolveAnswer(ctx, userID, true)
}

// resolveAnswer implements transition 6's mismatch/timer half.
func (g *Game) resolveAnswer(ctx context.Context, userID int64, wrong bool) {
	g.snap.AnsweredAlready = append(g.snap.AnsweredAlready, userID)
	if len(g.snap.AnsweredAlready) >= len(g.snap.Participants) {
		g.closeQuestion(ctx, nil)
		return
	}
	g.send(ctx, g.snap.PlayChat, "Incorrect. Who's next?", model.KeyboardPlus)
	g.snap.Phase = model.PhaseQuestion
	g.snap.CurrentAnswerer = 0
	g.persist()
	g.scheduleTimer(ctx, questionRetryTimer)
}

func (g *Game) participantName(uid int64) string {
	if p, ok := g.snap.Participants[uid]; ok {
		return p.User.DisplayName
	}
	return "unknown"
}

func containsUser(list []int64, uid int64) bool {
	for _, v := range list {
		if v == uid {
			return true
		}
	}
	return false
}

// onAfterQuestionMessage implements transition 7's message half
// (yes/no acknowledgement, independent of the pause controls that
// handlePauseControls already intercepted).
func (g *Game) onAfterQuestionMessage(ctx context.Context, userID int64, text string) {
	lower := strings.ToLower(text)
	switch lower {
	case "yes", "да":
		if !containsUser(g.snap.AnsweredAlready, userID) {
			return
		}
		if g.snap.HasAcknowledged {
			return
		}
		g.snap.AcknowledgedUser = userID
		g.snap.HasAcknowledged = true
		g.persist()
	case "no", "нет":
		if g.snap.HasAcknowledged && g.snap.AcknowledgedUser == userID {
			g.snap.HasAcknowledged = false
			g.persist()
		}
	}
}

// handlePauseControls implements transition 8; returns true if the
// message was a pause-control command (consumed regardless of outcome).
func (g *Game) handlePauseControls(ctx context.Context, userID int64, text string) bool {
	lower := strings.ToLower(text)
	switch {
	case lower == "pause" || lower == "пауза":
		g.snap.Paused = true
		g.persist()
		g.scheduleTimer(ctx, afterQuestionPaused)
		return true
	case lower == "continue" || lower == "продолжить":
		g.snap.Paused = false
		g.persist()
		g.scheduleTimer(ctx, afterQuestionTimer)
		return true
	case strings.HasPrefix(lower, "adjust"):
		arg := strings.TrimSpace(strings.TrimPrefix(lower, "adjust"))
		n, ok := parseAdjust(arg)
		if !ok {
			g.send(ctx, g.snap.PlayChat, "adjust must be a multiple of 10 between -10000 and 10000", model.KeyboardNone)
			return true
		}
		if !g.snap.Paused {
			g.send(ctx, g.snap.PlayChat, "adjust is only valid while paused", model.KeyboardNone)
			return true
		}
		if p, ok := g.snap.Participants[userID]; ok {
			p.Score += n
			g.persist()
		}
		return true
	}
	return false
}

// settleQuestion implements transition 7's timer half: score, advance
// the cursor, and route to the next phase.
func (g *Game) settleQuestion(ctx context.Context) {
	q := g.currentQuestion()
	for _, uid := range g.snap.AnsweredAlready {
		p, ok := g.snap.Participants[uid]
		if !ok {
			continue
		}
		if g.snap.HasAcknowledged && uid == g.snap.AcknowledgedUser {
			p.Score += q.Cost
			break
		}
		p.Score -= q.Cost
	}

	g.snap.CursorQuestion++
	g.snap.AnsweredAlready = nil
	g.snap.CurrentAnswerer = 0
	g.snap.HasAcknowledged = false

	if g.snap.CursorQuestion >= len(model.QuestionCosts) {
		g.snap.CursorTopic++
		g.announceScore(ctx)
		g.snap.Phase = model.PhaseBeforeTopic
		g.persist()
		g.scheduleTimer(ctx, beforeTopicTimer)
		return
	}

	if g.isLastTopic() && g.snap.CursorQuestion == len(model.QuestionCosts)-2 {
		g.announceScore(ctx)
		g.snap.Phase = model.PhaseSpecialScore
		g.persist()
		g.scheduleTimer(ctx, specialScoreTimer)
		return
	}

	g.snap.Phase = model.PhaseBeforeQuestion
	g.persist()
	g.scheduleTimer(ctx, beforeQuestionTimer)
}

func (g *Game) isLastTopic() bool {
	return g.snap.CursorTopic == len(g.snap.TopicIndices)-1
}

func (g *Game) announceScore(ctx context.Context) {
	var lines []string
	for _, p := range g.snap.Participants {
		lines = append(lines, fmt.Sprintf("%s: %d", p.User.DisplayName, p.Score))
	}
	g.send(ctx, g.snap.PlayChat, strings.Join(lines, "\n"), model.KeyboardNone)
}

// abort implements transition 9: terminate without rating application.
func (g *Game) abort(ctx context.Context) {
	g.snap.Aborted = true
	for _, chat := range g.snap.SourceChats {
		g.send(ctx, chat, "Game cancelled.", model.KeyboardNone)
	}
	g.enterAfterGame(ctx, true)
}

// enterAfterGame implements transition 10's first half: settlement,
// announce, schedule the epilogue grace period.
func (g *Game) enterAfterGame(ctx context.Context, aborted bool) {
	g.snap.Phase = model.PhaseAfterGame
	g.snap.Aborted = aborted

	if !aborted {
		results := make([]store.PlayerResult, 0, len(g.snap.Participants))
		var uids []int64
		for uid, p := range g.snap.Participants {
			results = append(results, store.PlayerResult{UserID: uid, Score: p.Score})
			uids = append(uids, uid)
		}
		deltas, err := g.store.CommitResult(results)
		if err != nil {
			g.log.Error("fsm: commit result failed", zap.Error(err))
		} else {
			g.announceSettlement(ctx, deltas)
		}
		if err := g.store.PushRecentOpponents(uids); err != nil {
			g.log.Warn("fsm: push recent opponents failed", zap.Error(err))
		}
	}

	g.persist()
	g.scheduleTimer(ctx, afterGameTimer)
}

func (g *Game) announceSettlement(ctx context.Context, deltas map[int64]int) {
	var lines []string
	for uid, p := range g.snap.Participants {
		delta := deltas[uid]
		sign := "+"
		if delta < 0 {
			sign = ""
		}
		lines = append(lines, fmt.Sprintf("%s: %d (%s%d)", p.User.DisplayName, p.Score, sign, delta))
	}
	for _, chat := range g.snap.SourceChats {
		g.send(ctx, chat, strings.Join(lines, "\n"), model.KeyboardNone)
	}
}

// finishEpilogue implements transition 10's second half: teardown.
func (g *Game) finishEpilogue(ctx context.Context) {
	if err := g.store.DeleteSnapshot(g.snap.PlayChat); err != nil {
		g.log.Error("fsm: delete snapshot failed", zap.Error(err))
	}
	if g.snap.InviteLink != "" {
		if err := g.bot.RevokeInviteLink(ctx, g.snap.PlayChat, g.snap.InviteLink); err != nil {
			g.log.Warn("fsm: revoke invite link failed", zap.Error(err))
		}
	}
	for uid := range g.snap.Participants {
		if err := g.bot.Kick(ctx, g.snap.PlayChat, uid); err != nil {
			g.log.Warn("fsm: kick participant failed", zap.Error(err))
		}
	}
	for uid := range g.snap.Spectators {
		if err := g.bot.Kick(ctx, g.snap.PlayChat, uid); err != nil {
			g.log.Warn("fsm: kick spectator failed", zap.Error(err))
		}
	}
	if g.ended != nil {
		g.ended.GameEnded(g.snap.PlayChat)
	}
}
