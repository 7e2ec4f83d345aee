package command

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

const (
	MaxContentLen    = 1024
	MaxAttachmentLen = 50 << 20
	msgNotSent       = "Message was not sent!"
)

// attachment is the [displayname, base64] pair sent with a message.
type attachment struct {
	Name string
	Data string
}

func (a *attachment) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("attachment: want [name, data], got %d elements", len(pair))
	}
	a.Name, a.Data = pair[0], pair[1]
	return nil
}

type messagePayload struct {
	ID         int64       `json:"_id" validate:"required"`
	Content    string      `json:"content" validate:"max=1024"`
	Attachment *attachment `json:"attachment"`
}

// prepare stores the attachment, if any, and builds the row to insert.
func (d *Dispatcher) prepare(ctx context.Context, kind domain.MessageKind, author domain.UserID, p messagePayload) (core.NewMessage, error) {
	m := core.NewMessage{Kind: kind, TargetID: p.ID, AuthorID: author, Content: p.Content}
	if p.Attachment == nil {
		if p.Content == "" {
			return m, fail(msgNotSent, errors.New("empty message"))
		}
		return m, nil
	}
	if p.Attachment.Name == "" {
		return m, fail(msgNotSent, errors.New("attachment without a name"))
	}
	data, err := base64.StdEncoding.DecodeString(p.Attachment.Data)
	if err != nil {
		return m, fail(msgNotSent, err)
	}
	if len(data) > MaxAttachmentLen {
		return m, fail("Cannot send attachment greater than 50 MB", nil)
	}
	name, err := d.blobs.Put(ctx, data)
	if err != nil {
		return m, fail(msgNotSent, err)
	}
	m.FileName, m.ActualName = name, p.Attachment.Name
	return m, nil
}

func (d *Dispatcher) insert(ctx context.Context, m core.NewMessage) (domain.Message, error) {
	msg, err := db(ctx, d, func(ctx context.Context) (domain.Message, error) {
		return d.store.InsertMessage(ctx, m)
	})
	if err != nil {
		return msg, fail(msgNotSent, err)
	}
	return msg, nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p messagePayload
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	room := domain.RoomID(p.ID)
	if err := d.requireMember(ctx, room, me.ID, msgNotSent); err != nil {
		return err
	}
	m, err := d.prepare(ctx, domain.MessagePublic, me.ID, p)
	if err != nil {
		return err
	}
	msg, err := d.insert(ctx, m)
	if err != nil {
		return err
	}
	_, err = d.orch.BroadcastRoom(room, protocol.Message, msg)
	return err
}

func (d *Dispatcher) sendPrivateMessage(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p messagePayload
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	other, err := d.friendOf(ctx, domain.FriendID(p.ID), me.ID)
	if err != nil {
		return fail(msgNotSent, err)
	}
	m, err := d.prepare(ctx, domain.MessagePrivate, me.ID, p)
	if err != nil {
		return err
	}
	msg, err := d.insert(ctx, m)
	if err != nil {
		return err
	}
	if _, err := d.orch.SendTo(other, protocol.Message, msg); err != nil {
		return err
	}
	_, err = d.orch.SendTo(me.ID, protocol.Message, msg)
	return err
}

func (d *Dispatcher) fetchRecentChats(ctx context.Context, sess core.Session, _ protocol.Frame) error {
	me := userOf(sess)
	msgs, err := db(ctx, d, func(ctx context.Context) ([]domain.Message, error) {
		return d.store.RecentMessages(ctx, me.ID)
	})
	if err != nil {
		return unexpected(err)
	}
	return sess.Send(ctx, protocol.RecentChats, msgs)
}

func (d *Dispatcher) downloadFile(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		FileName   string `json:"filename" validate:"required"`
		ActualName string `json:"actualname"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	data, err := d.blobs.Get(ctx, p.FileName)
	if err != nil {
		return fail(fmt.Sprintf("File %q does not exist anymore. Ask the author to resend the attachment", p.ActualName), err)
	}
	return sess.Send(ctx, protocol.DownloadFile, []string{p.ActualName, base64.StdEncoding.EncodeToString(data)})
}
