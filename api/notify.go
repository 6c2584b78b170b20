/*
notify.go - Default outbox collaborators

PURPOSE:
  Log-backed implementations of the outbox's Notifier and Mailer contracts,
  plus the adapter that re-renders a request's generated document after an
  approval event. Real deployments swap these for a push service and an
  SMTP relay; the engine neither knows nor cares.
*/
package api

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/document"
	"github.com/warp/leave-engine/workflow"
)

// LogNotifier writes in-app notifications to the log.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, userID workflow.UserID, kind, title, message, link string) error {
	n.Log.Info().
		Str("user_id", string(userID)).
		Str("kind", kind).
		Str("title", title).
		Str("link", link).
		Msg(message)
	return nil
}

// LogMailer writes outgoing mail to the log.
type LogMailer struct {
	Log zerolog.Logger
}

func (m *LogMailer) Send(ctx context.Context, email, template string, data map[string]string) error {
	m.Log.Info().
		Str("email", email).
		Str("template", template).
		Msg("mail queued")
	return nil
}

// DocRegenerator re-renders the generated document of a request. Satisfies
// workflow.DocumentRegenerator; failures propagate to the outbox, which
// logs and swallows them.
type DocRegenerator struct {
	Docs     document.Store
	Renderer document.Renderer
	Log      zerolog.Logger
}

func (d *DocRegenerator) Regenerate(ctx context.Context, requestID workflow.RequestID) error {
	doc, err := d.Docs.GetByRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("regenerate: load document: %w", err)
	}
	if doc == nil {
		return nil // request has no document, nothing to do
	}
	if d.Renderer == nil {
		return nil
	}

	sigs, err := d.Docs.ListSignatures(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("regenerate: load signatures: %w", err)
	}
	if _, err := d.Renderer.Render(ctx, document.BuildRenderModel(doc, sigs)); err != nil {
		return fmt.Errorf("regenerate: render: %w", err)
	}

	d.Log.Debug().
		Str("request_id", string(requestID)).
		Str("document_id", string(doc.ID)).
		Msg("document re-rendered")
	return nil
}
