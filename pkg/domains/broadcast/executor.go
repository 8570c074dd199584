package broadcast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wagate/pkg/dtos"
	"github.com/wagate/pkg/entities"
	"github.com/wagate/pkg/events"
	"github.com/wagate/pkg/utils"
)

// MediaFetcher downloads template media. Injected so tests never reach
// the network.
type MediaFetcher func(ctx context.Context, url string) (data []byte, mimeType string, err error)

func HTTPMediaFetcher() MediaFetcher {
	client := &http.Client{Timeout: 60 * time.Second}
	return func(ctx context.Context, url string) ([]byte, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("media fetch returned status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return nil, "", err
		}
		return data, resp.Header.Get("Content-Type"), nil
	}
}

const progressEvery = 5

// run is the campaign delivery loop: recipients in stable id order, the
// rate limiter as the only cross-campaign gate, progress persisted every
// recipient, batch sleeps between chunks, cancellation observed at each
// recipient boundary.
func (s *service) run(campaign entities.Campaign) {
	ctx := context.Background()

	template, err := campaign.ParseTemplate()
	if err != nil {
		s.finish(ctx, campaign, entities.CampaignStatusFailed)
		return
	}

	var media []byte
	var mediaMime string
	if template.MediaURL != "" {
		media, mediaMime, err = s.fetch(ctx, template.MediaURL)
		if err != nil {
			s.log.Error().Err(err).Uint("campaign_id", campaign.ID).Msg("media fetch failed")
			s.finish(ctx, campaign, entities.CampaignStatusFailed)
			return
		}
	}

	recipients, err := s.repo.PendingRecipients(ctx, campaign.ID)
	if err != nil {
		s.finish(ctx, campaign, entities.CampaignStatusFailed)
		return
	}

	sent, failed := campaign.SentCount, campaign.FailedCount
	inBatch := 0

	for i, recipient := range recipients {
		// Cancellation check at every recipient boundary.
		status, err := s.repo.Status(ctx, campaign.ID)
		if err == nil && status == entities.CampaignStatusCancelled {
			s.log.Info().Uint("campaign_id", campaign.ID).Msg("campaign cancelled, stopping")
			return
		}

		// Rate-limit gate: a denial sleeps and retries this recipient.
		for {
			decision, err := s.limiter.Check(ctx, campaign.SessionID)
			if err != nil {
				s.finish(ctx, campaign, entities.CampaignStatusFailed)
				return
			}
			if decision.CanSend {
				if decision.DelayMs > 0 {
					if err := s.clock.Sleep(ctx, time.Duration(decision.DelayMs)*time.Millisecond); err != nil {
						return
					}
				}
				break
			}
			s.log.Warn().Uint("campaign_id", campaign.ID).Str("reason", decision.Reason).Msg("send delayed by rate limit")
			if err := s.clock.Sleep(ctx, time.Duration(decision.DelayMs)*time.Millisecond); err != nil {
				return
			}
		}

		if err := s.deliver(ctx, campaign, template, recipient, media, mediaMime); err != nil {
			failed++
			if markErr := s.repo.MarkRecipient(ctx, recipient.ID, entities.RecipientStatusFailed, nil, err.Error()); markErr != nil {
				s.log.Error().Err(markErr).Uint("campaign_id", campaign.ID).Msg("failed to mark recipient failed")
			}
		} else {
			sent++
			at := s.clock.Now()
			if markErr := s.repo.MarkRecipient(ctx, recipient.ID, entities.RecipientStatusSent, &at, ""); markErr != nil {
				s.log.Error().Err(markErr).Uint("campaign_id", campaign.ID).Msg("failed to mark recipient sent")
			}
			if err := s.limiter.RecordSent(ctx, campaign.SessionID); err != nil {
				s.log.Error().Err(err).Str("session_id", campaign.SessionID).Msg("failed to record send")
			}
		}

		// Cumulative counters persist on every recipient; progress
		// events go out every fifth and on the last.
		if err := s.repo.SetCounters(ctx, campaign.ID, sent, failed); err != nil {
			s.log.Error().Err(err).Uint("campaign_id", campaign.ID).Msg("failed to persist counters")
		}
		processed := i + 1
		if processed%progressEvery == 0 || processed == len(recipients) {
			s.publish(campaign, events.TypeBroadcastProgress, dtos.BroadcastProgressDTO{
				CampaignID: campaign.ID,
				Status:     string(entities.CampaignStatusProcessing),
				Total:      campaign.TotalRecipients,
				Sent:       sent,
				Failed:     failed,
				Pending:    campaign.TotalRecipients - sent - failed,
			})
		}

		// Inter-batch sleep.
		inBatch++
		if inBatch >= campaign.BatchSize && processed < len(recipients) {
			inBatch = 0
			if err := s.clock.Sleep(ctx, time.Duration(campaign.BatchDelayMs)*time.Millisecond); err != nil {
				return
			}
		}
	}

	campaign.SentCount, campaign.FailedCount = sent, failed
	s.finish(ctx, campaign, entities.CampaignStatusCompleted)
}

func (s *service) deliver(ctx context.Context, campaign entities.Campaign, template entities.CampaignTemplate, recipient entities.Recipient, media []byte, mediaMime string) error {
	transport := s.gate.GetTransport(campaign.SessionID)
	if transport == nil || !transport.IsConnected() {
		return fmt.Errorf("session %s is not connected", campaign.SessionID)
	}

	jid, err := waParseJID(recipient.Phone)
	if err != nil {
		return err
	}

	content := renderForRecipient(template, recipient)

	switch template.Type {
	case entities.MessageTypeImage:
		caption := template.Caption
		if caption == "" {
			caption = content
		}
		_, err = transport.SendImage(ctx, jid, media, mediaMime, caption)
	case entities.MessageTypeDocument:
		_, err = transport.SendDocument(ctx, jid, media, mediaMime, template.Caption)
	default:
		_, err = transport.SendText(ctx, jid, content)
	}
	return err
}

// renderForRecipient substitutes template variables; {{name}} falls back
// to the phone number when the recipient has no name.
func renderForRecipient(template entities.CampaignTemplate, recipient entities.Recipient) string {
	vars := map[string]string{
		"phone": recipient.Phone,
		"name":  recipient.Name,
	}
	if vars["name"] == "" {
		vars["name"] = recipient.Phone
	}
	for k, v := range template.Variables {
		vars[k] = v
	}
	return utils.RenderTemplate(template.Content, vars)
}

func (s *service) finish(ctx context.Context, campaign entities.Campaign, status entities.CampaignStatus) {
	if err := s.repo.MarkFinished(ctx, campaign.ID, status, s.clock.Now()); err != nil {
		s.log.Error().Err(err).Uint("campaign_id", campaign.ID).Msg("failed to finish campaign")
	}

	evtType := events.TypeBroadcastCompleted
	if status == entities.CampaignStatusFailed {
		evtType = events.TypeBroadcastFailed
	}
	s.publish(campaign, evtType, dtos.BroadcastProgressDTO{
		CampaignID: campaign.ID,
		Status:     string(status),
		Total:      campaign.TotalRecipients,
		Sent:       campaign.SentCount,
		Failed:     campaign.FailedCount,
		Pending:    campaign.TotalRecipients - campaign.SentCount - campaign.FailedCount,
	})
}
