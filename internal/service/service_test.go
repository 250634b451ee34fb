package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/livite/outreach-backend/internal/clock"
	apperrors "github.com/livite/outreach-backend/internal/errors"
	"github.com/livite/outreach-backend/internal/mail"
	"github.com/livite/outreach-backend/internal/mirror"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/queue"
	"github.com/livite/outreach-backend/internal/store"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeMail struct {
	from      string
	addrErr   error
	sendErr   error
	threadErr error
	sends     []sentEmail
	threads   map[string][]mail.ThreadMessage
}

func newFakeMail() *fakeMail {
	return &fakeMail{from: "orders@livite.com", threads: map[string][]mail.ThreadMessage{}}
}

func (f *fakeMail) Send(ctx context.Context, to, subject, body, threadID string) (mail.SendResult, error) {
	if f.sendErr != nil {
		return mail.SendResult{}, f.sendErr
	}
	f.sends = append(f.sends, sentEmail{To: to, Subject: subject, Body: body})
	n := len(f.sends)
	return mail.SendResult{
		MessageID: fmt.Sprintf("prov-msg-%d", n),
		ThreadID:  fmt.Sprintf("prov-thr-%d", n),
	}, nil
}

func (f *fakeMail) Thread(ctx context.Context, threadID string) ([]mail.ThreadMessage, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return f.threads[threadID], nil
}

func (f *fakeMail) Address(ctx context.Context) (string, error) {
	if f.addrErr != nil {
		return "", f.addrErr
	}
	return f.from, nil
}

type mirrorRecord struct {
	order    mirror.Order
	archived bool
	undo     bool
}

type fakeMirror struct {
	seq       int
	orders    map[string]*mirrorRecord
	createErr error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{orders: map[string]*mirrorRecord{}}
}

func (f *fakeMirror) CreateOrder(ctx context.Context, o mirror.Order) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.seq++
	id := fmt.Sprintf("mirror-%d", f.seq)
	f.orders[id] = &mirrorRecord{order: o}
	return id, nil
}

func (f *fakeMirror) GetOrder(ctx context.Context, id string) (mirror.State, error) {
	rec, ok := f.orders[id]
	if !ok {
		return mirror.State{}, apperrors.ErrNotFound
	}
	return mirror.State{Archived: rec.archived, Undo: rec.undo}, nil
}

func (f *fakeMirror) ArchiveOrder(ctx context.Context, id string) error {
	rec, ok := f.orders[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	rec.archived = true
	return nil
}

// env wires every pipeline component against in-memory collaborators.
type env struct {
	store  *store.MemoryStore
	clock  *clock.Fixed
	mail   *fakeMail
	mirror *fakeMirror
	state  *LocalState

	drafts    *DraftGenerator
	followups *FollowupScheduler
	dispatch  *Dispatcher
	replies   *ReplyClassifier
	convert   *Converter
	undo      *UndoEngine
	cleanup   *Cleanup
	orch      *Orchestrator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:  store.NewMemoryStore(),
		clock:  clock.NewFixed(testNow),
		mail:   newFakeMail(),
		mirror: newFakeMirror(),
		state:  NewLocalState(t.TempDir()),
	}
	templates := &Templates{Store: e.store}
	admission := &Admission{Store: e.store, Clock: e.clock, ContactCooldownDays: 7, SchoolCooldownDays: 3}
	e.drafts = &DraftGenerator{Store: e.store, Clock: e.clock, Templates: templates, Admission: admission}
	e.followups = &FollowupScheduler{
		Store: e.store, Clock: e.clock, Templates: templates, Admission: admission,
		MaxSequenceSteps: 3, FollowupIntervalDays: 7,
	}
	e.dispatch = &Dispatcher{
		Store: e.store, Mail: e.mail, Clock: e.clock, Events: queue.NopPublisher{},
		MaxSendsPerCycle: 10, SendDelay: 3 * time.Second, FollowupIntervalDays: 7,
	}
	e.replies = &ReplyClassifier{Store: e.store, Mail: e.mail, Clock: e.clock}
	e.convert = &Converter{Store: e.store, Mirror: e.mirror, State: e.state, Clock: e.clock}
	e.undo = &UndoEngine{Store: e.store, Mirror: e.mirror, State: e.state, Clock: e.clock}
	e.cleanup = &Cleanup{Store: e.store, Clock: e.clock, NoResponseDays: 14}
	e.orch = &Orchestrator{
		Mail: e.mail, Clock: e.clock, Events: queue.NopPublisher{},
		Drafts: e.drafts, Followups: e.followups, Dispatch: e.dispatch,
		Replies: e.replies, Undo: e.undo, Convert: e.convert, Cleanup: e.cleanup,
	}
	return e
}

func (e *env) seedTemplate(t *testing.T, tpl model.Template) string {
	t.Helper()
	id, err := e.store.Create(context.Background(), store.EntityTemplates, tpl.Properties())
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return id
}

func (e *env) seedDefaultTemplates(t *testing.T) {
	t.Helper()
	e.seedTemplate(t, model.Template{
		Name: "Cold Step 1", SequenceStep: 1, SequenceType: model.SequenceCold, DaysAfter: 7,
		SubjectLine: "Catering for {{away_school}} {{sport}}",
		Body:        "Hi {{contact_first_name}}, we cater {{sport}} games.",
	})
	e.seedTemplate(t, model.Template{
		Name: "Follow-up Step 2", SequenceStep: 2, DaysAfter: 7,
		SubjectLine: "Following up: {{away_school}} {{sport}}",
		Body:        "Hi {{contact_first_name}}, just following up.",
	})
}

func (e *env) seedContact(t *testing.T, c model.Contact) string {
	t.Helper()
	id, err := e.store.Create(context.Background(), store.EntityContacts, c.Properties())
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	return id
}

func (e *env) seedGame(t *testing.T, g model.Game) string {
	t.Helper()
	id, err := e.store.Create(context.Background(), store.EntityGames, g.Properties())
	if err != nil {
		t.Fatalf("seed game: %v", err)
	}
	return id
}

func (e *env) seedMessage(t *testing.T, m model.Message) string {
	t.Helper()
	id, err := e.store.Create(context.Background(), store.EntityEmailQueue, m.Properties())
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return id
}

func (e *env) getGame(t *testing.T, id string) model.Game {
	t.Helper()
	ent, err := e.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get game %s: %v", id, err)
	}
	return model.GameFromEntity(ent)
}

func (e *env) getContact(t *testing.T, id string) model.Contact {
	t.Helper()
	ent, err := e.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get contact %s: %v", id, err)
	}
	return model.ContactFromEntity(ent)
}

func (e *env) getMessage(t *testing.T, id string) model.Message {
	t.Helper()
	ent, err := e.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get message %s: %v", id, err)
	}
	return model.MessageFromEntity(ent)
}

func (e *env) queueMessages(t *testing.T) []model.Message {
	t.Helper()
	items, err := store.QueryAll(context.Background(), e.store, store.EntityEmailQueue, store.Query{})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	msgs := make([]model.Message, 0, len(items))
	for _, ent := range items {
		msgs = append(msgs, model.MessageFromEntity(ent))
	}
	return msgs
}

func (e *env) setFlag(t *testing.T, id, prop string, v bool) {
	t.Helper()
	if err := e.store.Update(context.Background(), id, store.Properties{prop: store.Checkbox(v)}); err != nil {
		t.Fatalf("set %s on %s: %v", prop, id, err)
	}
}

func (e *env) isArchived(t *testing.T, id string) bool {
	t.Helper()
	ent, err := e.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return ent.Archived
}

func (e *env) liveOrders(t *testing.T) []model.Order {
	t.Helper()
	items, err := store.QueryAll(context.Background(), e.store, store.EntityOrders, store.Query{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	orders := make([]model.Order, 0, len(items))
	for _, ent := range items {
		orders = append(orders, model.OrderFromEntity(ent))
	}
	return orders
}

func daysAgo(n int) *time.Time {
	ts := testNow.AddDate(0, 0, -n)
	return &ts
}

func daysAhead(n int) *time.Time {
	ts := testNow.AddDate(0, 0, n)
	return &ts
}
