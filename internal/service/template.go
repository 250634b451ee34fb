package service

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "github.com/livite/outreach-backend/internal/errors"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/store"
)

const ourCompany = "Livite Sports Catering"

// Templates selects and renders email templates.
type Templates struct {
	Store store.RecordStore
}

// FindDraft picks the template for a first-touch draft. Fallback order:
// sport+step+type, then step+type any sport, then Cold when Returning has no
// match, then any template at the step.
func (t *Templates) FindDraft(ctx context.Context, sport string, step int, seqType model.SequenceType) (*model.Template, error) {
	if sport != "" {
		tpl, err := t.query(ctx, store.Filter{All: []store.Cond{
			{Property: model.TemplatePropSport, Op: store.OpEquals, Value: store.Select(sport)},
			{Property: model.TemplatePropSequenceStep, Op: store.OpEquals, Value: store.Number(float64(step))},
			{Property: model.TemplatePropSequenceType, Op: store.OpEquals, Value: store.Select(string(seqType))},
		}})
		if err != nil || tpl != nil {
			return tpl, err
		}
	}

	tpl, err := t.query(ctx, store.Filter{All: []store.Cond{
		{Property: model.TemplatePropSequenceStep, Op: store.OpEquals, Value: store.Number(float64(step))},
		{Property: model.TemplatePropSequenceType, Op: store.OpEquals, Value: store.Select(string(seqType))},
	}})
	if err != nil || tpl != nil {
		return tpl, err
	}

	if seqType == model.SequenceReturning {
		return t.FindDraft(ctx, sport, step, model.SequenceCold)
	}

	return t.query(ctx, store.Filter{All: []store.Cond{
		{Property: model.TemplatePropSequenceStep, Op: store.OpEquals, Value: store.Number(float64(step))},
	}})
}

// FindFollowup picks the template for a follow-up step. Fallback order:
// sport+step, then step any sport, then the highest available step.
func (t *Templates) FindFollowup(ctx context.Context, sport string, step int) (*model.Template, error) {
	if sport != "" {
		tpl, err := t.query(ctx, store.Filter{All: []store.Cond{
			{Property: model.TemplatePropSport, Op: store.OpEquals, Value: store.Select(sport)},
			{Property: model.TemplatePropSequenceStep, Op: store.OpEquals, Value: store.Number(float64(step))},
		}})
		if err != nil || tpl != nil {
			return tpl, err
		}
	}

	tpl, err := t.query(ctx, store.Filter{All: []store.Cond{
		{Property: model.TemplatePropSequenceStep, Op: store.OpEquals, Value: store.Number(float64(step))},
	}})
	if err != nil || tpl != nil {
		return tpl, err
	}

	all, err := store.QueryAll(ctx, t.Store, store.EntityTemplates, store.Query{})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	templates := make([]model.Template, 0, len(all))
	for _, e := range all {
		templates = append(templates, model.TemplateFromEntity(e))
	}
	sort.SliceStable(templates, func(i, j int) bool {
		return templates[i].SequenceStep > templates[j].SequenceStep
	})
	return &templates[0], nil
}

func (t *Templates) query(ctx context.Context, f store.Filter) (*model.Template, error) {
	page, err := t.Store.Query(ctx, store.EntityTemplates, store.Query{Filter: f})
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	tpl := model.TemplateFromEntity(page.Items[0])
	return &tpl, nil
}

// TemplateVars builds the substitution map for a game and contact pair.
func TemplateVars(g model.Game, c model.Contact) map[string]string {
	gameDate, gameDateFormatted := "", ""
	if g.Date != nil {
		gameDate = g.Date.Format("2006-01-02")
		gameDateFormatted = g.Date.Format("January 2, 2006")
	}
	return map[string]string{
		"contact_name":        c.Name,
		"contact_first_name":  c.FirstName(),
		"contact_title":       c.Title,
		"home_school":         g.HomeSchool,
		"away_school":         g.AwaySchool,
		"school_name":         g.AwaySchool,
		"opponent_school":     g.HomeSchool,
		"game_date":           gameDate,
		"game_date_formatted": gameDateFormatted,
		"sport":               g.Sport,
		"venue":               g.Venue,
		"our_company":         ourCompany,
	}
}

var placeholderPattern = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Render substitutes {{variable}} placeholders. Variables mapped to an empty
// value are replaced with nothing; unknown placeholders are left in place for
// ValidateRendered to catch.
func Render(text string, vars map[string]string) string {
	for key, val := range vars {
		text = strings.ReplaceAll(text, "{{"+key+"}}", val)
	}
	return text
}

// ValidateRendered rejects output that still contains placeholders.
func ValidateRendered(subject, body string) error {
	matches := placeholderPattern.FindAllString(subject+body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var unresolved []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			unresolved = append(unresolved, m)
		}
	}
	sort.Strings(unresolved)
	return &apperrors.TemplateRenderError{Unresolved: unresolved}
}

// DaysAfter returns the template's follow-up interval, falling back to the
// configured default when unset.
func DaysAfter(tpl *model.Template, fallbackDays int) time.Duration {
	days := fallbackDays
	if tpl != nil && tpl.DaysAfter > 0 {
		days = tpl.DaysAfter
	}
	return time.Duration(days) * 24 * time.Hour
}
