package chat

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFrames(t *testing.T) {
	frame, err := NewChatMessage("ana", "hello").Frame()
	require.NoError(t, err)
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hello","username":"ana"}`, string(data))

	frame, err = NewSystemNotice("Chamado #3: resolvido").Frame()
	require.NoError(t, err)
	data, err = json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"notice":"Chamado #3: resolvido"}`, string(data))

	_, err = Event{Kind: "other"}.Frame()
	assert.Error(t, err)
}

func TestEnvelopeCarriesRoom(t *testing.T) {
	payload, err := encodeEnvelope("chat_suporte_9", NewChatMessage("ana", "hi"))
	require.NoError(t, err)

	room, ev, err := decodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, "chat_suporte_9", room)
	assert.Equal(t, NewChatMessage("ana", "hi"), ev)

	_, _, err = decodeEnvelope([]byte(`{"kind":"chat_message","message":"x"}`))
	assert.ErrorIs(t, err, errMissingRoom)
}

func TestSubjectForProducesSingleToken(t *testing.T) {
	subject, err := subjectFor("sala.com espaço>*")
	require.NoError(t, err)
	token := strings.TrimPrefix(subject, natsSubjectPrefix)
	assert.NotContains(t, token, ".")
	assert.NotContains(t, token, "*")
	assert.NotContains(t, token, ">")
	assert.NotContains(t, token, " ")

	_, err = subjectFor("")
	assert.Error(t, err)
}
