package gateway

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioProvider delivers through the Twilio messaging API. Group targets are
// not supported by Twilio; the orchestrator routes groups to the http
// provider deployments instead.
type TwilioProvider struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioProvider(accountSID, authToken, fromNumber string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{client: client, fromNumber: fromNumber}
}

func (p *TwilioProvider) Name() string {
	return "twilio"
}

func (p *TwilioProvider) Send(_ context.Context, target, message string) (string, error) {
	if IsGroupTarget(target) {
		return "", fmt.Errorf("%w: twilio cannot deliver to group %s", ErrInvalidTarget, target)
	}

	to := "+" + target
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(p.fromNumber)
	params.SetBody(message)

	resp, err := p.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send via twilio to %s: %w", to, err)
	}
	if resp.Sid != nil {
		return *resp.Sid, nil
	}
	return "", nil
}
