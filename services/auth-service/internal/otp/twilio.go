package otp

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

// TwilioVerify delegates code generation and checking to Twilio Verify.
type TwilioVerify struct {
	client     *twilio.RestClient
	serviceSID string
}

func NewTwilioVerify(accountSID, authToken, serviceSID string) *TwilioVerify {
	return &TwilioVerify{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		serviceSID: serviceSID,
	}
}

func (t *TwilioVerify) Name() string { return "twilio" }

func (t *TwilioVerify) Start(ctx context.Context, phone string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &verify.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel("sms")
	if _, err := t.client.VerifyV2.CreateVerification(t.serviceSID, params); err != nil {
		return fmt.Errorf("twilio verification: %w", err)
	}
	return nil
}

func (t *TwilioVerify) Check(ctx context.Context, phone, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)
	resp, err := t.client.VerifyV2.CreateVerificationCheck(t.serviceSID, params)
	if err != nil {
		return false, fmt.Errorf("twilio verification check: %w", err)
	}
	return resp.Status != nil && *resp.Status == "approved", nil
}
