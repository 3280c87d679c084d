package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdesk/console/internal/models"
)

type fakeSlack struct {
	channels []string
	texts    []string
	err      error
}

func (f *fakeSlack) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	f.texts = append(f.texts, "posted")
	return channelID, "ts", f.err
}

func testRequest(status models.RequestStatus) *models.ActionRequest {
	return &models.ActionRequest{
		ID:          "req-1",
		ActionID:    "kill-process",
		RequesterID: "u1",
		Risk:        models.RiskHigh,
		Status:      status,
		DecidedBy:   "u2",
		ExpiresAt:   time.Now().Add(30 * time.Minute),
	}
}

func TestSlackNotifier_PostsToChannel(t *testing.T) {
	api := &fakeSlack{}
	n := NewSlackNotifier(api, "#approvals", zerolog.Nop())

	n.RequestPending(testRequest(models.StatusPending))
	n.RequestDecided(testRequest(models.StatusApproved))
	n.RequestDecided(testRequest(models.StatusDenied))
	n.RequestFinished(testRequest(models.StatusFailed))

	require.Len(t, api.channels, 4)
	for _, ch := range api.channels {
		assert.Equal(t, "#approvals", ch)
	}
}

func TestSlackNotifier_PostFailureIsSwallowed(t *testing.T) {
	api := &fakeSlack{err: errors.New("slack down")}
	n := NewSlackNotifier(api, "#approvals", zerolog.Nop())

	// Must not panic or propagate.
	n.RequestPending(testRequest(models.StatusPending))
	assert.Len(t, api.channels, 1)
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	n.RequestPending(testRequest(models.StatusPending))
	n.RequestDecided(testRequest(models.StatusApproved))
	n.RequestFinished(testRequest(models.StatusCompleted))
}
