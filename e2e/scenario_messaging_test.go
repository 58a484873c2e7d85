package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type testMessagingSuite struct {
	BaseHTTPSuite
}

func TestMessagingSuite(t *testing.T) {
	suite.Run(t, &testMessagingSuite{})
}

// TestDirectMessageFlow walks the happy path of two fresh accounts: signup,
// direct conversation, realtime delivery, then deletion.
func (s *testMessagingSuite) TestDirectMessageFlow() {
	// Fresh usernames per run so the suite can be replayed against a
	// long-lived server.
	suffix := uuid.New().String()[:8]
	alice := s.NewSession("alice" + suffix)
	bob := s.NewSession("bob" + suffix)

	s.Run("Step 0: Sign both parties up", func() {
		s.Step("Signup")
		for _, session := range []*Session{alice, bob} {
			status := session.Call(http.MethodPost, "/auth/signup", map[string]string{
				"username": session.Username,
				"name":     session.Username,
				"email":    session.Username + "@example.com",
				"password": "Correct-horse-battery1",
			}, nil)
			s.Require().Equal(http.StatusCreated, status)
		}
	})

	// Bob listens on the realtime socket before anything happens
	conn := bob.Dial()
	defer conn.Close()

	var conversationID string
	s.Run("Step 1: Alice opens a DM, Bob is notified live", func() {
		s.Step("Create DM")
		var view struct {
			ID string `json:"id"`
		}
		status := alice.Call(http.MethodPost, "/chat/dm",
			map[string]string{"username": bob.Username}, &view)
		s.Require().Equal(http.StatusCreated, status)
		s.Require().NotEmpty(view.ID)
		conversationID = view.ID

		envelope := bob.NextEvent(conn, 5*time.Second)
		s.Require().JSONEq(`"group:join"`, string(envelope["event"]))
	})

	var messageID string
	s.Run("Step 2: Alice posts, Bob receives the transfer event", func() {
		s.Step("Post message")
		var view struct {
			ID      string  `json:"id"`
			Content *string `json:"content"`
		}
		status := alice.Call(http.MethodPost, fmt.Sprintf("/chat/%s/message", conversationID),
			map[string]string{"content": "hello bob"}, &view)
		s.Require().Equal(http.StatusCreated, status)
		s.Require().NotNil(view.Content)
		s.Require().Equal("hello bob", *view.Content)
		messageID = view.ID

		envelope := bob.NextEvent(conn, 5*time.Second)
		s.Require().JSONEq(`"message:transfer"`, string(envelope["event"]))

		var payload struct {
			Message struct {
				Content *string `json:"content"`
			} `json:"message"`
		}
		s.Require().NoError(json.Unmarshal(envelope["payload"], &payload))
		s.Require().NotNil(payload.Message.Content)
		s.Require().Equal("hello bob", *payload.Message.Content)
	})

	s.Run("Step 3: Bob cannot delete Alice's message, Alice can", func() {
		s.Step("Delete message")
		status := bob.Call(http.MethodDelete, "/chat/message/"+messageID, nil, nil)
		s.Require().Equal(http.StatusForbidden, status)

		status = alice.Call(http.MethodDelete, "/chat/message/"+messageID, nil, nil)
		s.Require().Equal(http.StatusOK, status)

		envelope := bob.NextEvent(conn, 5*time.Second)
		s.Require().JSONEq(`"message:delete"`, string(envelope["event"]))
	})

	s.Run("Step 4: The conversation survives in both lists", func() {
		s.Step("List conversations")
		for _, session := range []*Session{alice, bob} {
			var views []struct {
				ID string `json:"id"`
				DM bool   `json:"dm"`
			}
			status := session.Call(http.MethodGet, "/chat", nil, &views)
			s.Require().Equal(http.StatusOK, status)
			s.Require().Len(views, 1)
			s.Require().Equal(conversationID, views[0].ID)
			s.Require().True(views[0].DM)
		}
	})
}
