// Package platform declares the contract the coordination engine needs
// from the messaging-platform client library. The client library
// itself (send/edit/kick/invite-link, the update stream) is out of
// scope for this spec (§1) — only its contract is noted here so `bot`
// and the FSM/Supervisor have something concrete to compile against.
package platform

import (
	"context"
	"strings"
)

// ChatMemberStatus mirrors the subset of platform member statuses the
// engine cares about (§4.3 kick/all_present).
type ChatMemberStatus string

const (
	StatusMember ChatMemberStatus = "member"
	StatusLeft   ChatMemberStatus = "left"
	StatusKicked ChatMemberStatus = "kicked"
)

// Document is an uploaded file reference as delivered by the update
// stream (§4.3 download_document, §6 package upload).
type Document struct {
	FileID   string
	FileName string
	MimeType string
}

// Update is one inbound event from either bot's update stream (§2,
// §4.8). Exactly one of the payload fields is populated.
type Update struct {
	ChatID         int64
	UserID         int64
	DisplayName    string
	Text           string
	NewChatMembers []int64
	Document       *Document
}

// Client is the messaging-platform contract. A concrete implementation
// lives outside this module's scope; tests use a fake satisfying this
// interface.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb [][]string, removeKeyboard bool) (messageID int, err error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	KickChatMember(ctx context.Context, chatID int64, userID int64) error
	GetChatMember(ctx context.Context, chatID int64, userID int64) (ChatMemberStatus, error)
	CreateInviteLink(ctx context.Context, chatID int64) (string, error)
	RevokeInviteLink(ctx context.Context, chatID int64, link string) error
	DownloadDocument(ctx context.Context, doc Document) (fileName string, contents []byte, err error)
	Updates() <-chan Update
}

// IsPermanent reports whether an error text marks a permanent client
// error per §7 ("a failure whose description contains 'Bad Request'").
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Bad Request")
}
