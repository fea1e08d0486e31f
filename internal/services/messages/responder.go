package messages

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
)

// messageKind classifies an incoming client message so the responder can
// pick a prompt or canned template.
type messageKind string

const (
	kindUrgent        messageKind = "urgent"
	kindQuestion      messageKind = "question"
	kindRevision      messageKind = "revision"
	kindProgress      messageKind = "progress"
	kindPayment       messageKind = "payment"
	kindGeneral       messageKind = "general"
)

var kindKeywords = []struct {
	kind     messageKind
	keywords []string
}{
	{kindUrgent, []string{"緊急", "急ぎ", "至急", "urgent", "asap", "今すぐ"}},
	{kindQuestion, []string{"質問", "確認", "不明", "question", "clarify", "わからない"}},
	{kindRevision, []string{"修正", "変更", "revision", "feedback", "改善", "やり直し"}},
	{kindProgress, []string{"進捗", "状況", "progress", "status", "どうですか", "いかがですか"}},
	{kindPayment, []string{"支払", "料金", "請求", "payment", "invoice", "price"}},
}

// cannedResponses cover every kind when no LLM provider is configured.
var cannedResponses = map[messageKind]string{
	kindUrgent:   "ご連絡ありがとうございます。至急確認し、本日中に対応いたします。",
	kindQuestion: "ご質問ありがとうございます。内容を確認の上、詳しくご回答いたします。",
	kindRevision: "承知いたしました。ご指摘の内容に沿って修正し、改めて納品いたします。",
	kindProgress: "現在順調に作業を進めております。完了次第すぐにご報告いたします。",
	kindPayment:  "お支払いに関するご連絡ありがとうございます。プラットフォームの手続きに沿って進めさせていただきます。",
	kindGeneral:  "ご連絡ありがとうございます。内容を確認し、改めてご返信いたします。",
}

const responderSystemPrompt = `You draft short, polite replies to gig-work clients on a Japanese
freelance platform. Reply in the client's language, keep it under 120
words, stay professional, and never promise anything beyond the agreed
task scope. Output only the reply text.`

// Responder drafts replies to client messages. With an LLM it generates
// contextual replies; without one it answers from canned templates.
type Responder struct {
	llm    interfaces.LLMService // nil when provider is "none"
	logger arbor.ILogger
}

func NewResponder(llm interfaces.LLMService, logger arbor.ILogger) *Responder {
	return &Responder{llm: llm, logger: logger}
}

// GenerateResponse drafts one reply to the message.
func (r *Responder) GenerateResponse(ctx context.Context, jobID string, message *models.Message) (string, error) {
	if message == nil {
		return "", fmt.Errorf("message is required")
	}

	kind := classifyMessage(message.Body)

	if r.llm == nil {
		r.logger.Debug().
			Str("job_id", jobID).
			Str("kind", string(kind)).
			Msg("Using canned response")
		return cannedResponses[kind], nil
	}

	reply, err := r.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: responderSystemPrompt},
		{Role: "user", Content: buildReplyPrompt(jobID, kind, message)},
	})
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("job_id", jobID).
			Msg("Reply generation failed, using canned response")
		return cannedResponses[kind], nil
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return cannedResponses[kind], nil
	}

	r.logger.Info().
		Str("job_id", jobID).
		Str("kind", string(kind)).
		Str("message_id", message.ID).
		Msg("Generated message reply")

	return reply, nil
}

func classifyMessage(body string) messageKind {
	text := strings.ToLower(body)
	for _, entry := range kindKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(text, keyword) {
				return entry.kind
			}
		}
	}
	return kindGeneral
}

func buildReplyPrompt(jobID string, kind messageKind, message *models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job ID: %s\n", jobID)
	fmt.Fprintf(&b, "Message category: %s\n", kind)
	if message.Sender != "" {
		fmt.Fprintf(&b, "From: %s\n", message.Sender)
	}
	fmt.Fprintf(&b, "Client message:\n%s\n", message.Body)
	b.WriteString("\nDraft the reply.")
	return b.String()
}

var _ interfaces.MessageResponder = (*Responder)(nil)
