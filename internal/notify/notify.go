// Package notify alerts approvers about approval-workflow events. Notification
// is best-effort: a failed post never blocks or rolls back a transition.
package notify

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/nimbusdesk/console/internal/models"
)

// Notifier receives workflow events after they commit.
type Notifier interface {
	RequestPending(req *models.ActionRequest)
	RequestDecided(req *models.ActionRequest)
	RequestFinished(req *models.ActionRequest)
}

// Nop is a Notifier that does nothing.
type Nop struct{}

func (Nop) RequestPending(*models.ActionRequest)  {}
func (Nop) RequestDecided(*models.ActionRequest)  {}
func (Nop) RequestFinished(*models.ActionRequest) {}

// SlackAPI is the minimal Slack API surface needed by the notifier.
type SlackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts workflow events to the approvals channel.
type SlackNotifier struct {
	api     SlackAPI
	channel string
	logger  zerolog.Logger
}

// NewSlackNotifier creates a notifier posting to the given channel.
func NewSlackNotifier(api SlackAPI, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:     api,
		channel: channel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// RequestPending announces a request awaiting approval.
func (n *SlackNotifier) RequestPending(req *models.ActionRequest) {
	n.post(fmt.Sprintf(":hourglass: Approval needed: *%s* (%s risk) requested by %s — request `%s`, expires %s",
		req.ActionID, req.Risk, req.RequesterID, req.ID, req.ExpiresAt.Format("15:04 MST")))
}

// RequestDecided announces an approval or denial.
func (n *SlackNotifier) RequestDecided(req *models.ActionRequest) {
	emoji := ":white_check_mark:"
	verb := "approved"
	if req.Status != models.StatusApproved && req.Status != models.StatusExecuting {
		emoji = ":no_entry:"
		verb = string(req.Status)
	}
	n.post(fmt.Sprintf("%s Request `%s` (*%s*) %s by %s", emoji, req.ID, req.ActionID, verb, req.DecidedBy))
}

// RequestFinished announces a terminal execution outcome.
func (n *SlackNotifier) RequestFinished(req *models.ActionRequest) {
	emoji := ":white_check_mark:"
	if req.Status == models.StatusFailed {
		emoji = ":x:"
	}
	n.post(fmt.Sprintf("%s Request `%s` (*%s*) finished: %s", emoji, req.ID, req.ActionID, req.Status))
}

func (n *SlackNotifier) post(text string) {
	_, _, err := n.api.PostMessage(n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn().Err(err).Msg("failed to post approval notification")
	}
}
