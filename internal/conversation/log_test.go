package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
)

func TestLog(t *testing.T) {
	t.Parallel()

	l := NewLog()
	require.NoError(t, l.Append(model.Message{ID: "a", Text: "hello", IsUser: true}))
	require.NoError(t, l.Append(model.Message{ID: "b", Loading: true}))
	require.Error(t, l.Append(model.Message{ID: "a"}))
	assert.Equal(t, 2, l.Len())

	updated, err := l.Update("b", func(m *model.Message) {
		m.ID = "ignored"
		m.Loading = false
		m.Text = "done"
	})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.ID, "ids are stable")

	all := l.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "done", all[1].Text)

	_, err = l.Update("zzz", func(*model.Message) {})
	require.ErrorIs(t, err, common.ErrMessageNotFound)
	_, err = l.Get("zzz")
	require.ErrorIs(t, err, common.ErrMessageNotFound)
}

func TestLog_ReturnsCopies(t *testing.T) {
	t.Parallel()

	l := NewLog()
	require.NoError(t, l.Append(model.Message{
		ID:       "a",
		Response: &model.ClassificationResponse{Entities: model.Entities{"amount": "5"}},
	}))

	got, err := l.Get("a")
	require.NoError(t, err)
	got.Response.Entities["amount"] = "500"

	again, err := l.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "5", again.Response.Entities["amount"])
}
