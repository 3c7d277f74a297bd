/*
Copyright 2025 Recon Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package notification posts worker failures to Slack. Notification is a side
// channel: failures to deliver are logged and never propagate to the caller.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reconcilehq/recon/config"
)

type slackPayload struct {
	Text string `json:"text"`
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// NotifyError posts an error notification to the configured Slack webhook.
func NotifyError(systemError error) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}

	if conf.Notification.Slack.WebhookUrl == "" {
		return
	}

	payload := slackPayload{
		Text: fmt.Sprintf("[%s] %s", conf.ProjectName, systemError.Error()),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logrus.Error(err)
		return
	}

	resp, err := httpClient.Post(conf.Notification.Slack.WebhookUrl, "application/json", bytes.NewReader(body))
	if err != nil {
		logrus.WithError(err).Error("unable to deliver slack notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logrus.WithField("status", resp.StatusCode).Error("slack webhook rejected notification")
	}
}
