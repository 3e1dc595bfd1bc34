package model

import "time"

// Message is one entry in a conversation log.
type Message struct {
	Timestamp         time.Time               `json:"timestamp"`
	Response          *ClassificationResponse `json:"response,omitempty"`
	Resolution        *Resolution             `json:"resolution,omitempty"`
	SmartResponse     *SmartResponse          `json:"smartResponse,omitempty"`
	ID                string                  `json:"id"`
	Text              string                  `json:"text"`
	TransferSessionID string                  `json:"transferSessionId,omitempty"`
	Error             string                  `json:"error,omitempty"`
	ReplyTo           string                  `json:"replyTo,omitempty"`
	IsUser            bool                    `json:"isUser"`
	Loading           bool                    `json:"loading"`
	SmartMode         bool                    `json:"smartMode,omitempty"`
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	c := m
	c.Response = m.Response.Clone()
	if m.Resolution != nil {
		r := *m.Resolution
		r.Config = make(map[string]any, len(m.Resolution.Config))
		for k, v := range m.Resolution.Config {
			r.Config[k] = v
		}
		r.MissingParameters = append([]string(nil), m.Resolution.MissingParameters...)
		c.Resolution = &r
	}
	if m.SmartResponse != nil {
		s := *m.SmartResponse
		c.SmartResponse = &s
	}
	return c
}
