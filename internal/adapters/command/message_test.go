package command

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

func TestSendRoomMessage(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	bob := h.login("bob")
	carol := h.login("carol")
	room := h.createRoom(alice, "general", "bob")
	alice.Reset()
	bob.Reset()

	h.do(alice, protocol.SendMessage, map[string]any{"_id": room.ID, "content": "hello"})
	got := body[domain.Message](t, bob, protocol.Message)
	assert.Equal(t, domain.MessagePublic, got.Kind)
	assert.Equal(t, int64(room.ID), got.TargetID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hello", got.Content)
	assert.False(t, got.HasAttachment())
	assert.Equal(t, got, body[domain.Message](t, alice, protocol.Message))

	h.do(carol, protocol.SendMessage, map[string]any{"_id": room.ID, "content": "let me in"})
	assert.Equal(t, "Message was not sent!", errorMessage(t, carol))
	assert.Len(t, bob.Frames(), 1)

	h.do(bob, protocol.FetchRecentChats, nil)
	recent := body[[]domain.Message](t, bob, protocol.RecentChats)
	require.Len(t, recent, 1)
	assert.Equal(t, "hello", recent[0].Content)
}

func TestSendMessageValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	room := h.createRoom(alice, "general")

	h.do(alice, protocol.SendMessage, map[string]any{"_id": room.ID, "content": ""})
	assert.Equal(t, "Message was not sent!", errorMessage(t, alice))

	long := make([]byte, MaxContentLen+1)
	for i := range long {
		long[i] = 'a'
	}
	h.do(alice, protocol.SendMessage, map[string]any{"_id": room.ID, "content": string(long)})
	assert.Equal(t, msgMalformed, errorMessage(t, alice))

	h.do(alice, protocol.SendMessage, map[string]any{"_id": room.ID, "attachment": []string{"only-name"}})
	assert.Equal(t, msgMalformed, errorMessage(t, alice))
}

func TestAttachmentDownload(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	room := h.createRoom(alice, "general")
	payload := []byte("%PDF-1.4 not really")

	h.do(alice, protocol.SendMessage, map[string]any{
		"_id":        room.ID,
		"content":    "",
		"attachment": []string{"report.pdf", base64.StdEncoding.EncodeToString(payload)},
	})
	msg := body[domain.Message](t, alice, protocol.Message)
	require.True(t, msg.HasAttachment())
	assert.Equal(t, "report.pdf", msg.ActualName)
	assert.Len(t, msg.FileName, 32)

	h.do(alice, protocol.DownloadFile, map[string]string{"filename": msg.FileName, "actualname": msg.ActualName})
	file := body[[]string](t, alice, protocol.DownloadFile)
	require.Len(t, file, 2)
	assert.Equal(t, "report.pdf", file[0])
	data, err := base64.StdEncoding.DecodeString(file[1])
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	h.do(alice, protocol.DownloadFile, map[string]string{"filename": "0123456789abcdef0123456789abcdef", "actualname": "gone.txt"})
	assert.Equal(t, `File "gone.txt" does not exist anymore. Ask the author to resend the attachment`, errorMessage(t, alice))

	h.do(alice, protocol.DownloadFile, map[string]string{"filename": "../../etc/passwd", "actualname": "x"})
	assert.Contains(t, errorMessage(t, alice), "does not exist anymore")
}
