/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"errors"
	"net/url"
)

// Telegram describes one telegram send request (a=sendTG).
// ClientKey is the sender's API client key issued by the moderators, TelegramID
// and SecretKey identify the telegram template, Recipient is the target nation.
// Recruitment telegrams are paced with a longer mandatory interval than
// standard ones and must be flagged as such.
type Telegram struct {
	ClientKey   string
	TelegramID  string
	SecretKey   string
	Recipient   string
	Recruitment bool
}

// Validate checks that all required fields are present.
func (t Telegram) Validate() error {
	if t.ClientKey == "" {
		return errors.New("telegram client key is required")
	}
	if t.TelegramID == "" {
		return errors.New("telegram id is required")
	}
	if t.SecretKey == "" {
		return errors.New("telegram secret key is required")
	}
	if t.Recipient == "" {
		return errors.New("telegram recipient is required")
	}
	return nil
}

// URL builds the send request for this telegram.
func (t Telegram) URL() *url.URL {
	return buildURL(Params{
		"a":      "sendTG",
		"client": t.ClientKey,
		"tgid":   t.TelegramID,
		"key":    t.SecretKey,
		"to":     NormalizeName(t.Recipient),
	})
}
