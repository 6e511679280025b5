package adapters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/breaker"
	"github.com/reelscript/reelscript/internal/model"
)

// Card is one carousel element.
type Card struct {
	ImageURL string
	Title    string
	Subtitle string
	// Buttons maps caption to target URL.
	Buttons map[string]string
}

// Messenger talks to the ManyChat API. Custom-field writes and message
// sends ride the messaging circuit.
type Messenger struct {
	http *resty.Client
	brk  *breaker.Breaker
	log  zerolog.Logger
}

func NewMessenger(baseURL, apiKey string, brk *breaker.Breaker, timeout time.Duration, log zerolog.Logger) *Messenger {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Messenger{http: client, brk: brk, log: log}
}

// SetCustomField writes one named custom field on the subscriber. Callers
// own the field ordering contract.
func (m *Messenger) SetCustomField(ctx context.Context, subscriberID, fieldName, value string) error {
	id, err := strconv.ParseInt(subscriberID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: subscriber id %q is not numeric", model.ErrValidation, subscriberID)
	}
	return m.brk.Execute(ctx, func(ctx context.Context) error {
		resp, err := m.http.R().
			SetContext(ctx).
			SetBody(map[string]interface{}{
				"subscriber_id": id,
				"field_name":    fieldName,
				"field_value":   value,
			}).
			Post("/fb/subscriber/setCustomFieldByName")
		return m.classify("set custom field "+fieldName, resp, err)
	})
}

// SendText posts a plain text message to the subscriber.
func (m *Messenger) SendText(ctx context.Context, subscriberID, text string) error {
	return m.sendContent(ctx, subscriberID, []map[string]interface{}{
		{"type": "text", "text": text},
	})
}

// SendCard posts a single image card.
func (m *Messenger) SendCard(ctx context.Context, subscriberID string, card Card) error {
	return m.sendContent(ctx, subscriberID, []map[string]interface{}{cardPayload(card)})
}

// SendCarousel posts a multi-card template.
func (m *Messenger) SendCarousel(ctx context.Context, subscriberID string, cards []Card) error {
	elements := make([]map[string]interface{}, 0, len(cards))
	for _, c := range cards {
		elements = append(elements, cardElement(c))
	}
	return m.sendContent(ctx, subscriberID, []map[string]interface{}{
		{"type": "cards", "elements": elements, "image_aspect_ratio": "square"},
	})
}

// HealthPing verifies API reachability via the page info endpoint.
func (m *Messenger) HealthPing(ctx context.Context) error {
	resp, err := m.http.R().SetContext(ctx).Get("/fb/page/getInfo")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("manychat ping: status %d", resp.StatusCode())
	}
	return nil
}

func (m *Messenger) sendContent(ctx context.Context, subscriberID string, messages []map[string]interface{}) error {
	id, err := strconv.ParseInt(subscriberID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: subscriber id %q is not numeric", model.ErrValidation, subscriberID)
	}
	return m.brk.Execute(ctx, func(ctx context.Context) error {
		resp, err := m.http.R().
			SetContext(ctx).
			SetBody(map[string]interface{}{
				"subscriber_id": id,
				"data": map[string]interface{}{
					"version": "v2",
					"content": map[string]interface{}{"messages": messages},
				},
			}).
			Post("/fb/sending/sendContent")
		return m.classify("send content", resp, err)
	})
}

func (m *Messenger) classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &model.UpstreamError{Service: CircuitMessaging, Permanent: false,
			Cause: fmt.Errorf("%s: %w", op, err)}
	}
	if resp.IsError() {
		permanent := resp.StatusCode() == 400 || resp.StatusCode() == 401 || resp.StatusCode() == 404
		return &model.UpstreamError{Service: CircuitMessaging, Permanent: permanent,
			Cause: fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), truncate(string(resp.Body()), 200))}
	}
	return nil
}

func cardPayload(c Card) map[string]interface{} {
	if c.ImageURL != "" && c.Title == "" {
		return map[string]interface{}{"type": "image", "url": c.ImageURL}
	}
	return map[string]interface{}{"type": "cards", "elements": []map[string]interface{}{cardElement(c)}}
}

func cardElement(c Card) map[string]interface{} {
	el := map[string]interface{}{
		"title":     c.Title,
		"subtitle":  c.Subtitle,
		"image_url": c.ImageURL,
	}
	if len(c.Buttons) > 0 {
		var buttons []map[string]interface{}
		for caption, url := range c.Buttons {
			buttons = append(buttons, map[string]interface{}{
				"type":    "url",
				"caption": caption,
				"url":     url,
			})
		}
		el["buttons"] = buttons
	}
	return el
}
