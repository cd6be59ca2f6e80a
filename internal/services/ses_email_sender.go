package services

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESSender delivers mail through Amazon SES. The sender address must be
// verified with SES before use.
type SESSender struct {
	client *ses.Client
	from   string
}

func NewSESSender(awsConfig aws.Config, from string) *SESSender {
	return &SESSender{
		client: ses.NewFromConfig(awsConfig),
		from:   from,
	}
}

func (s *SESSender) Send(to string, subject string, body string) error {
	charset := "UTF-8"
	_, err := s.client.SendEmail(context.Background(), &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String(charset),
				Data:    aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Charset: aws.String(charset),
					Data:    aws.String(body),
				},
			},
		},
	})
	return err
}
