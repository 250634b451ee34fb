package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/livite/outreach-backend/internal/clock"
	apperrors "github.com/livite/outreach-backend/internal/errors"
	"github.com/livite/outreach-backend/internal/mail"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/store"
)

// Classification keyword lists, checked in priority order. First category
// with a hit wins; no hit leaves the response type blank rather than
// guessing.
var (
	outOfOfficeKeywords = []string{
		"out of office", "out of the office", "ooo", "auto-reply", "auto reply",
		"automatic reply", "away from", "on vacation", "on leave", "on holiday",
		"limited access to email", "will be out", "currently out", "not in the office",
		"returning on", "i am currently away", "i will be away",
		"will respond when i return", "no longer with",
	}
	bookedKeywords = []string{
		"place an order", "place the order", "love to order",
		"head count", "headcount", "how many players",
		"set that up", "set it up", "count us in", "we're in",
		"sign us up", "confirmed", "book it", "reserve it",
		"go ahead and order", "we would like to order",
	}
	notInterestedKeywords = []string{
		"decline", "pass on", "not interested", "no thanks", "no thank",
		"won't need", "already have", "own catering", "not this time",
		"not at this time", "no need", "don't need", "not looking",
		"all set", "we're good", "we are good", "not right now",
		"already arranged", "taken care of", "covered",
	}
	questionKeywords = []string{
		"how much", "pricing", "menu", "what do you offer", "what are your",
		"options", "can you send", "send me", "more info", "more information",
		"what would", "how does", "how do you",
	}
	interestedKeywords = []string{
		"interested", "sounds interesting", "sounds great", "sounds good",
		"like to learn", "tell me more", "give me a call", "call me",
		"let's chat", "let's talk", "let's do it", "love to", "love food",
		"love to have", "go ahead", "move forward", "yes please",
		"reach out to", "pass this along", "forward this",
		"get back to you", "let me know",
	}
)

// ClassifyResponse maps reply text onto a response type. Out of Office is
// checked first because auto-replies often contain positive-sounding words.
// Returns "" when nothing matches.
func ClassifyResponse(text string) model.ResponseType {
	lower := strings.ToLower(text)
	for _, group := range []struct {
		keywords []string
		result   model.ResponseType
	}{
		{outOfOfficeKeywords, model.ResponseOutOfOffice},
		{bookedKeywords, model.ResponseBooked},
		{notInterestedKeywords, model.ResponseNotInterested},
		{questionKeywords, model.ResponseQuestion},
		{interestedKeywords, model.ResponseInterested},
	} {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.result
			}
		}
	}
	return ""
}

// Quote markers separating the reply from the quoted original underneath.
var quotePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\s*On\s+\w{3},\s+\w{3}\s+\d{1,2},\s+\d{4}\s+at\s+.*?wrote:.*`),
	regexp.MustCompile(`(?is)\s*On\s+\d{1,2}/\d{1,2}/\d{2,4}.*?wrote:.*`),
	regexp.MustCompile(`(?is)\s*-{5,}.*(?:Original|Forwarded).*-{5,}.*`),
	regexp.MustCompile(`(?is)\s*From:.*Sent:.*`),
}

// StripQuotedReply cuts quoted or forwarded text ("On Mon, ... wrote:",
// "---------- Forwarded message ----------") off the end of a reply.
func StripQuotedReply(text string) string {
	for _, p := range quotePatterns {
		if loc := p.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
		}
	}
	return strings.TrimSpace(text)
}

// buildResponseNote writes the one-line summary appended to the game notes.
func buildResponseNote(responseType model.ResponseType, text, from string) string {
	sender := from
	if i := strings.Index(from, "<"); i >= 0 {
		sender = strings.Trim(strings.TrimSpace(from[:i]), `"`)
	}
	label := string(responseType)
	if label == "" {
		label = "Reply"
	}
	snippet := StripQuotedReply(text)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return fmt.Sprintf("[%s] %s: %q", label, sender, strings.TrimSpace(snippet))
}

// ReplyClassifier polls sent emails for thread replies.
type ReplyClassifier struct {
	Store store.RecordStore
	Mail  mail.Provider
	Clock clock.Clock
}

type ReplyStats struct {
	Checked int
	Replies int
	Failed  int
	// AuthFailed means the provider rejected our credentials; the scan
	// stopped and unchecked messages wait for the next run.
	AuthFailed bool
}

func (r *ReplyClassifier) Run(ctx context.Context) ReplyStats {
	var stats ReplyStats

	ourAddress, err := r.Mail.Address(ctx)
	if err != nil {
		log.Println("⚠️ Failed to fetch mail profile:", err)
		if apperrors.IsAuth(err) {
			stats.AuthFailed = true
		} else {
			stats.Failed++
		}
		return stats
	}

	sent, err := store.QueryAll(ctx, r.Store, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.MessagePropStatus, Op: store.OpEquals, Value: store.Select(string(model.StatusSent))},
		{Property: model.MessagePropProviderThreadID, Op: store.OpIsNotEmpty},
	}}})
	if err != nil {
		log.Println("⚠️ Failed to query sent emails:", err)
		stats.Failed++
		return stats
	}
	if len(sent) == 0 {
		return stats
	}
	log.Printf("Checking %d sent email(s) for replies", len(sent))

	for _, e := range sent {
		stats.Checked++
		msg := model.MessageFromEntity(e)
		reply, err := r.latestReply(ctx, msg, ourAddress)
		if err != nil {
			if apperrors.IsAuth(err) {
				log.Println("⚠️ Mail auth failed, aborting reply checks:", err)
				stats.AuthFailed = true
				break
			}
			stats.Failed++
			log.Printf("⚠️ Reply check for %s failed: %v", msg.Title, err)
			continue
		}
		if reply == nil {
			continue
		}
		if err := r.recordReply(ctx, msg, *reply); err != nil {
			stats.Failed++
			log.Printf("⚠️ Recording reply for %s failed: %v", msg.Title, err)
			continue
		}
		stats.Replies++
	}
	return stats
}

// latestReply returns the newest thread message that is not our own
// outbound. A message is a reply when its provider id differs from the one
// we recorded at send time; when that id is missing the From header is
// compared against our address instead.
func (r *ReplyClassifier) latestReply(ctx context.Context, msg model.Message, ourAddress string) (*mail.ThreadMessage, error) {
	thread, err := r.Mail.Thread(ctx, msg.ProviderThreadID)
	if err != nil {
		if apperrors.IsAuth(err) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch thread: %w", err)
	}

	var latest *mail.ThreadMessage
	for i := range thread {
		tm := thread[i]
		if msg.ProviderMessageID != "" {
			if tm.ID == msg.ProviderMessageID {
				continue
			}
		} else if ourAddress != "" && strings.Contains(strings.ToLower(tm.From), strings.ToLower(ourAddress)) {
			continue
		}
		if latest == nil || tm.Date.After(latest.Date) {
			latest = &thread[i]
		}
	}
	return latest, nil
}

func (r *ReplyClassifier) recordReply(ctx context.Context, msg model.Message, reply mail.ThreadMessage) error {
	text := reply.Body
	if text == "" {
		text = reply.Snippet
	}
	responseType := ClassifyResponse(text)
	note := buildResponseNote(responseType, text, reply.From)
	now := r.Clock.Now()

	props := store.Properties{
		model.MessagePropStatus:        store.Select(string(model.StatusResponded)),
		model.MessagePropResponseDate:  store.Date(now),
		model.MessagePropResponseNotes: store.Text(note),
	}
	if responseType != "" {
		props[model.MessagePropResponseType] = store.Select(string(responseType))
	}
	if err := r.Store.Update(ctx, msg.ID, props); err != nil {
		return fmt.Errorf("update email: %w", err)
	}

	if msg.GameID != "" {
		gameEntity, err := r.Store.Get(ctx, msg.GameID)
		if err != nil {
			return fmt.Errorf("fetch game: %w", err)
		}
		game := model.GameFromEntity(gameEntity)
		props := store.Properties{
			model.GamePropNotes: store.Text(appendNote(game.Notes, note)),
		}
		// A reply never walks the game back down the funnel; a Booked
		// game only collects the note.
		if !game.OutreachStatus.MoreAdvancedThan(model.OutreachResponded) {
			props[model.GamePropOutreachStatus] = store.Select(string(model.OutreachResponded))
		}
		if err := r.Store.Update(ctx, msg.GameID, props); err != nil {
			return fmt.Errorf("update game: %w", err)
		}
	}

	log.Printf("📩 Reply on %s classified as %q", msg.Title, responseType)
	return nil
}
