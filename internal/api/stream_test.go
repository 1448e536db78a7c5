package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/terra-clan/challenge-designer/internal/models"
)

func dialStream(t *testing.T, s *Server) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(s.Router())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/challenge/design/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readAll(t *testing.T, conn *websocket.Conn) []StreamMessage {
	t.Helper()
	var msgs []StreamMessage
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
			return msgs
		}
		msgs = append(msgs, msg)
	}
}

func TestDesignStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestServer(t, scripted(map[string]string{
		"refinedChallenge":   `{"isConcrete": true, "refinedChallenge": {"title": "t", "description": "d"}}`,
		"initialActionTitle": `{"initialActionTitle": "単語帳を開く", "estimatedMinutes": 5, "actionType": "mini_execution"}`,
	}))
	conn, closeAll := dialStream(t, s)
	defer closeAll()

	require.NoError(t, conn.WriteJSON(models.DesignRequest{ChallengeText: "英語を毎日30分勉強する"}))
	msgs := readAll(t, conn)
	require.NotEmpty(t, msgs)

	assert.Equal(t, StreamConnected, msgs[0].Type)
	assert.NotEmpty(t, msgs[0].Session)

	var stages []models.Stage
	for _, m := range msgs {
		if m.Type == StreamStage {
			require.NotNil(t, m.Event)
			stages = append(stages, m.Event.Stage)
		}
	}
	assert.Equal(t, []models.Stage{
		models.StageReceived,
		models.StageValidated,
		models.StageClassified,
		models.StageDifficultyAssessed,
		models.StageActionDesigned,
		models.StageComplete,
	}, stages)

	last := msgs[len(msgs)-1]
	require.Equal(t, StreamDesign, last.Type)
	require.NotNil(t, last.Design)
	assert.True(t, last.Design.Success)
	assert.Equal(t, models.CategoryLearning, last.Design.Category)
	assert.Equal(t, "単語帳を開く", last.Design.InitialAction.Title)
}

func TestDesignStreamFailedStage(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestServer(t, downCompleter)
	conn, closeAll := dialStream(t, s)
	defer closeAll()

	require.NoError(t, conn.WriteJSON(models.DesignRequest{ChallengeText: "起業して成功する"}))
	msgs := readAll(t, conn)
	require.GreaterOrEqual(t, len(msgs), 3)

	failed := msgs[len(msgs)-2]
	require.Equal(t, StreamStage, failed.Type)
	assert.Equal(t, models.StageFailed, failed.Event.Stage)
	assert.Equal(t, models.StageActionDesigned, failed.Event.FailedAt)

	last := msgs[len(msgs)-1]
	require.NotNil(t, last.Design)
	assert.False(t, last.Design.Success)
	assert.Equal(t, models.LevelGrowth, last.Design.DifficultyLevel)
}

func TestDesignStreamRejectsBadRequest(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestServer(t, downCompleter)
	conn, closeAll := dialStream(t, s)
	defer closeAll()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msgs := readAll(t, conn)
	require.Len(t, msgs, 2)
	assert.Equal(t, StreamError, msgs[1].Type)

	conn2, closeAll2 := dialStream(t, s)
	defer closeAll2()

	require.NoError(t, conn2.WriteJSON(models.DesignRequest{}))
	msgs = readAll(t, conn2)
	require.Len(t, msgs, 2)
	assert.Equal(t, StreamError, msgs[1].Type)
	assert.Equal(t, "challengeText is required", msgs[1].Message)
}
