package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"jeopardybot/model"
	"jeopardybot/pkgfile"
	"jeopardybot/platform"
	"jeopardybot/proposal"
)

const defaultRatingListSize = 20

// parseCommand strips an optional leading '/' and an '@botname'
// suffix, lower-cases the command word, and returns it with the
// remaining argument text (§6 "case-insensitive; leading / optional;
// @botname suffix stripped").
func parseCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "/")
	word, rest, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	return strings.ToLower(word), strings.TrimSpace(rest)
}

func (s *Supervisor) handleSchedulerUpdate(ctx context.Context, u platform.Update) {
	if u.Document != nil && u.ChatID == u.UserID && u.UserID == s.managerID {
		s.handlePackageUpload(ctx, u)
		return
	}
	if u.ChatID == u.UserID {
		s.privateCommand(ctx, u)
		return
	}
	s.groupCommand(ctx, u)
}

func (s *Supervisor) handlePlayUpdate(ctx context.Context, u platform.Update) {
	if u.UserID == s.dummyID {
		cmd, _ := parseCommand(u.Text)
		switch cmd {
		case "добавить":
			if err := s.store.RegisterRoom(u.ChatID); err != nil {
				s.log.Error("supervisor: register room failed", zap.Error(err))
				return
			}
			s.mu.Lock()
			s.rooms[u.ChatID] = true
			s.mu.Unlock()
		case "удалить":
			if err := s.store.UnregisterRoom(u.ChatID); err != nil {
				s.log.Error("supervisor: unregister room failed", zap.Error(err))
				return
			}
			s.mu.Lock()
			delete(s.rooms, u.ChatID)
			s.mu.Unlock()
		}
		return
	}

	s.mu.Lock()
	game, live := s.games[u.ChatID]
	s.mu.Unlock()
	if !live {
		if err := s.playBot.Kick(ctx, u.ChatID, u.UserID); err != nil {
			s.log.Warn("supervisor: kick into unbound play chat failed", zap.Error(err))
		}
		return
	}
	for _, uid := range u.NewChatMembers {
		game.DeliverJoin(u.ChatID, uid)
	}
	if u.Text != "" {
		game.Deliver(u.ChatID, u.UserID, u.Text)
	}
}

func (s *Supervisor) handlePackageUpload(ctx context.Context, u platform.Update) {
	name, data, err := s.schedulerBot.DownloadDocument(ctx, *u.Document)
	if err != nil {
		_, _ = s.schedulerBot.Send(ctx, u.ChatID, fmt.Sprintf("Could not download package: %v", err), model.KeyboardNone)
		return
	}
	pkg, err := pkgfile.Parse(name, data)
	if err != nil {
		_, _ = s.schedulerBot.Send(ctx, u.ChatID, fmt.Sprintf("Could not parse package: %v", err), model.KeyboardNone)
		return
	}
	if err := s.store.SavePackage(pkg); err != nil {
		_, _ = s.schedulerBot.Send(ctx, u.ChatID, fmt.Sprintf("Could not save package: %v", err), model.KeyboardNone)
		return
	}
	_, _ = s.schedulerBot.Send(ctx, u.ChatID, fmt.Sprintf("Package %q saved as %q.", pkg.Title, pkg.PackageID), model.KeyboardNone)
}

// privateCommand implements §4.8's "scheduler, private chat" routing:
// manager commands if the sender is the manager, else personal
// commands.
func (s *Supervisor) privateCommand(ctx context.Context, u platform.Update) {
	cmd, arg := parseCommand(u.Text)
	if u.UserID == s.managerID {
		if s.managerCommand(ctx, u.UserID, cmd, arg) {
			return
		}
	}
	s.personalCommand(ctx, u.UserID, u.DisplayName, cmd, arg)
}

func (s *Supervisor) reply(ctx context.Context, chatID int64, text string) {
	_, _ = s.schedulerBot.Send(ctx, chatID, text, model.KeyboardNone)
}

func (s *Supervisor) managerCommand(ctx context.Context, managerID int64, cmd, arg string) bool {
	switch cmd {
	case "выключение":
		go s.Shutdown(ctx)
		s.reply(ctx, managerID, "Shutting down once running games finish.")
		return true
	case "включить":
		if err := s.store.ActivatePackage(arg); err != nil {
			s.reply(ctx, managerID, fmt.Sprintf("Could not activate %s: %v", arg, err))
			return true
		}
		s.reply(ctx, managerID, fmt.Sprintf("Activated %s.", arg))
		return true
	case "выключить":
		if err := s.store.DeactivatePackage(arg); err != nil {
			s.reply(ctx, managerID, fmt.Sprintf("Could not deactivate %s: %v", arg, err))
			return true
		}
		s.reply(ctx, managerID, fmt.Sprintf("Deactivated %s.", arg))
		return true
	case "темы":
		names, err := s.store.TopicNames(arg)
		if err != nil {
			s.reply(ctx, managerID, fmt.Sprintf("Could not list topics: %v", err))
			return true
		}
		s.reply(ctx, managerID, strings.Join(names, "\n"))
		return true
	}
	return false
}

func (s *Supervisor) personalCommand(ctx context.Context, userID int64, displayName, cmd, arg string) {
	user, err := s.store.GetOrCreateUser(userID, displayName)
	if err != nil {
		s.log.Error("supervisor: get or create user failed", zap.Error(err))
		return
	}

	switch cmd {
	case "help", "start", "":
		s.reply(ctx, userID, "Commands: register, unregister, list, status, rating [N], block <pkg>, unblock <pkg>, played, banlist, ban <i>, unban <i>.")
	case "register", "+":
		messageID, _ := s.schedulerBot.Send(ctx, userID, "Waiting for players... (1 in queue)", model.KeyboardNone)
		s.matcher.Enqueue(*user, messageID)
	case "unregister", "-":
		s.matcher.Dequeue(userID)
		s.reply(ctx, userID, "Removed from the queue.")
	case "list":
		s.replyActivePackages(ctx, userID)
	case "status":
		s.reply(ctx, userID, fmt.Sprintf("Rating: %.1f. Queue size: %d.", user.DisplayRating(), s.matcher.QueueSize()))
	case "rating":
		s.replyRating(ctx, userID, arg)
	case "block":
		if arg == "" {
			s.reply(ctx, userID, "Usage: block <pkg>")
			return
		}
		if err := s.store.BlockPackage(userID, arg); err != nil {
			s.reply(ctx, userID, fmt.Sprintf("Could not block %s: %v", arg, err))
			return
		}
		s.reply(ctx, userID, fmt.Sprintf("Blocked %s.", arg))
	case "unblock":
		if arg == "" {
			s.reply(ctx, userID, "Usage: unblock <pkg>")
			return
		}
		if err := s.store.UnblockPackage(userID, arg); err != nil {
			s.reply(ctx, userID, fmt.Sprintf("Could not unblock %s: %v", arg, err))
			return
		}
		s.reply(ctx, userID, fmt.Sprintf("Unblocked %s.", arg))
	case "played":
		s.replyPlayed(ctx, userID)
	case "banlist":
		s.replyBanList(ctx, userID)
	case "ban":
		s.handleBan(ctx, userID, arg)
	case "unban":
		s.handleUnban(ctx, userID, arg)
	default:
		s.reply(ctx, userID, "Unknown command.")
	}
}

func (s *Supervisor) replyActivePackages(ctx context.Context, userID int64) {
	ids, err := s.store.ListActivePackages()
	if err != nil {
		s.log.Error("supervisor: list active packages failed", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		s.reply(ctx, userID, "No active packages.")
		return
	}
	s.reply(ctx, userID, strings.Join(ids, "\n"))
}

func (s *Supervisor) replyRating(ctx context.Context, userID int64, arg string) {
	n := defaultRatingListSize
	if arg != "" {
		parsed, err := strconv.Atoi(arg)
		if err != nil || parsed <= 0 || parsed > 200 {
			s.reply(ctx, userID, "N must be a number between 1 and 200.")
			return
		}
		n = parsed
	}
	ranked, err := s.store.ListRatings(n)
	if err != nil {
		s.log.Error("supervisor: list ratings failed", zap.Error(err))
		return
	}
	var lines []string
	for _, r := range ranked {
		lines = append(lines, fmt.Sprintf("%d. %s: %.1f", r.Rank, r.User.DisplayName, r.User.DisplayRating()))
	}
	s.reply(ctx, userID, strings.Join(lines, "\n"))
}

func (s *Supervisor) replyPlayed(ctx context.Context, userID int64) {
	ids, err := s.store.ListActivePackages()
	if err != nil {
		s.log.Error("supervisor: list active packages failed", zap.Error(err))
		return
	}
	var lines []string
	for _, id := range ids {
		bm, err := s.store.PlayedBitmap(userID, id)
		if err != nil {
			s.log.Error("supervisor: played bitmap failed", zap.Error(err))
			return
		}
		lines = append(lines, fmt.Sprintf("%s: %d topics played", id, bm.Count()))
	}
	if len(lines) == 0 {
		s.reply(ctx, userID, "No topics played yet.")
		return
	}
	s.reply(ctx, userID, strings.Join(lines, "\n"))
}

func (s *Supervisor) replyBanList(ctx context.Context, userID int64) {
	list, err := s.store.BanList(userID)
	if err != nil {
		s.log.Error("supervisor: ban list failed", zap.Error(err))
		return
	}
	if len(list) == 0 {
		s.reply(ctx, userID, "Your ban list is empty.")
		return
	}
	var lines []string
	for i, uid := range list {
		lines = append(lines, fmt.Sprintf("%d. %d", i+1, uid))
	}
	s.reply(ctx, userID, strings.Join(lines, "\n"))
}

// handleBan implements `ban <index-in-played>`: §6 indexes into the
// user's recent-opponents list (the only ordered roster of "people
// I've played with" the Store exposes), banning the opponent at that
// position.
func (s *Supervisor) handleBan(ctx context.Context, userID int64, arg string) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 1 {
		s.reply(ctx, userID, "Usage: ban <index>")
		return
	}
	opponents, err := s.store.RecentOpponents(userID)
	if err != nil {
		s.log.Error("supervisor: recent opponents failed", zap.Error(err))
		return
	}
	if idx > len(opponents) {
		s.reply(ctx, userID, "No such recent opponent.")
		return
	}
	target := opponents[idx-1]
	result, err := s.store.BanAdd(userID, target)
	if err != nil {
		s.log.Error("supervisor: ban add failed", zap.Error(err))
		return
	}
	switch result {
	case model.BanAdded:
		s.reply(ctx, userID, "Banned.")
	case model.BanAlreadyPresent:
		s.reply(ctx, userID, "Already banned.")
	case model.BanAtLimit:
		s.reply(ctx, userID, "Ban list is full (50).")
	}
}

func (s *Supervisor) handleUnban(ctx context.Context, userID int64, arg string) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 1 {
		s.reply(ctx, userID, "Usage: unban <index>")
		return
	}
	list, err := s.store.BanList(userID)
	if err != nil {
		s.log.Error("supervisor: ban list failed", zap.Error(err))
		return
	}
	if idx > len(list) {
		s.reply(ctx, userID, "No such ban-list entry.")
		return
	}
	if err := s.store.BanRemove(userID, list[idx-1]); err != nil {
		s.log.Error("supervisor: ban remove failed", zap.Error(err))
		return
	}
	s.reply(ctx, userID, "Unbanned.")
}

// groupCommand implements §4.8's "scheduler, group chat" routing:
// proposal commands and read-only queries.
func (s *Supervisor) groupCommand(ctx context.Context, u platform.Update) {
	cmd, arg := parseCommand(u.Text)
	user, err := s.store.GetOrCreateUser(u.UserID, u.DisplayName)
	if err != nil {
		s.log.Error("supervisor: get or create user failed", zap.Error(err))
		return
	}

	switch cmd {
	case "help":
		s.reply(ctx, u.ChatID, "Group commands: game, set <pkg>, topics <N>, minplayers <N>, maxplayers <N>, register, spectator, unregister, start, abort, list, status, rating, block, unblock.")
		return
	case "list", "status", "rating", "block", "unblock":
		s.personalCommand(ctx, u.UserID, u.DisplayName, cmd, arg)
		return
	}

	s.mu.Lock()
	p, exists := s.proposals[u.ChatID]
	if !exists && cmd == "game" {
		p = proposal.New(u.ChatID)
		s.proposals[u.ChatID] = p
	}
	s.mu.Unlock()

	if p == nil {
		s.reply(ctx, u.ChatID, "No proposal yet; say \"game\" to start one.")
		return
	}

	switch cmd {
	case "game":
		s.touchProposal(p)
		s.reply(ctx, u.ChatID, "New game proposal started.")
	case "set":
		pkg, err := s.store.GetPackage(arg)
		if err != nil || pkg == nil {
			s.reply(ctx, u.ChatID, "Unknown package.")
			return
		}
		p.SetPackage(arg)
		s.touchProposal(p)
		s.reply(ctx, u.ChatID, fmt.Sprintf("Package set to %s.", arg))
	case "topics":
		s.applyIntSetting(ctx, u.ChatID, p, arg, p.SetTopicCount)
	case "minplayers":
		s.applyIntSetting(ctx, u.ChatID, p, arg, p.SetMinPlayers)
	case "maxplayers":
		s.applyIntSetting(ctx, u.ChatID, p, arg, p.SetMaxPlayers)
	case "register", "+":
		if err := p.AddPlayer(*user); err != nil {
			s.reply(ctx, u.ChatID, err.Error())
			return
		}
		s.touchProposal(p)
		s.reply(ctx, u.ChatID, fmt.Sprintf("%s registered.", user.DisplayName))
	case "spectator":
		p.AddSpectator(*user)
		s.touchProposal(p)
		s.reply(ctx, u.ChatID, fmt.Sprintf("%s is spectating.", user.DisplayName))
	case "unregister", "-":
		p.Remove(u.UserID)
		s.touchProposal(p)
		s.reply(ctx, u.ChatID, fmt.Sprintf("%s removed.", user.DisplayName))
	case "abort":
		s.mu.Lock()
		delete(s.proposals, u.ChatID)
		s.mu.Unlock()
		s.reply(ctx, u.ChatID, "Proposal cancelled.")
	case "start":
		s.startProposal(ctx, u.ChatID, p)
	default:
		s.reply(ctx, u.ChatID, "Unknown command.")
	}
}

func (s *Supervisor) applyIntSetting(ctx context.Context, chatID int64, p *proposal.Proposal, arg string, set func(int) error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		s.reply(ctx, chatID, "Expected a number.")
		return
	}
	if err := set(n); err != nil {
		s.reply(ctx, chatID, err.Error())
		return
	}
	s.touchProposal(p)
	s.reply(ctx, chatID, "Updated.")
}

func (s *Supervisor) startProposal(ctx context.Context, chatID int64, p *proposal.Proposal) {
	s.mu.Lock()
	shuttingDown := s.shuttingDown
	s.mu.Unlock()
	if shuttingDown {
		s.reply(ctx, chatID, "Bot is about to restart, try again later.")
		return
	}

	payload, err := p.Start()
	if err != nil {
		s.reply(ctx, chatID, err.Error())
		return
	}
	if err := s.startGameFromProposal(ctx, payload); err != nil {
		s.reply(ctx, chatID, fmt.Sprintf("Could not start game: %v", err))
		return
	}
	s.mu.Lock()
	delete(s.proposals, chatID)
	s.mu.Unlock()
}
