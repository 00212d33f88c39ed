// Package notice turns request outcomes into user-facing notices.
package notice

import (
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/logger"
	"github.com/rubiojr/pathfinder/pkg/view"
)

// CommunicationMessage is shown for every transport failure.
const CommunicationMessage = "Communication error, please try again."

// Show raises a notice of the given kind.
func Show(n view.Notifier, kind view.NoticeKind, message string) {
	n.Notify(view.Notice{Kind: kind, Message: message})
}

// Validation raises a validation notice.
func Validation(n view.Notifier, message string) {
	Show(n, view.NoticeValidation, message)
}

// Failure reports a failed request. Aborted requests are dropped silently;
// backend failures show backendMessage; anything else is a communication
// error. It reports whether a notice was raised.
func Failure(n view.Notifier, err error, backendMessage string) bool {
	switch {
	case err == nil:
		return false
	case gateway.IsAborted(err):
		logger.Debug("dropping aborted request: %v", err)
		return false
	case gateway.IsBackend(err):
		logger.Error("%v", err)
		Show(n, view.NoticeBackend, backendMessage)
	default:
		logger.Error("%v", err)
		Show(n, view.NoticeCommunication, CommunicationMessage)
	}
	return true
}
