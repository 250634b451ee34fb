package model

import "github.com/livite/outreach-backend/internal/store"

// Property names in the templates database.
const (
	TemplatePropTitle        = "Template Name"
	TemplatePropSport        = "Sport"
	TemplatePropSequenceStep = "Sequence Step"
	TemplatePropSequenceType = "Sequence Type"
	TemplatePropDaysAfter    = "Days After Previous"
	TemplatePropSubjectLine  = "Subject Line"
	TemplatePropBody         = "Body"
)

// Template holds the subject and body text for one step of a sequence.
// Sport may be empty, meaning the template applies to any sport.
type Template struct {
	ID           string
	Name         string
	Sport        string
	SequenceStep int
	SequenceType SequenceType
	DaysAfter    int
	SubjectLine  string
	Body         string
}

func TemplateFromEntity(e store.Entity) Template {
	p := e.Properties
	t := Template{
		ID:           e.ID,
		Name:         p[TemplatePropTitle].Text,
		Sport:        p[TemplatePropSport].Text,
		SequenceType: SequenceType(p[TemplatePropSequenceType].Text),
		SubjectLine:  p[TemplatePropSubjectLine].Text,
		Body:         p[TemplatePropBody].Text,
	}
	if n := p[TemplatePropSequenceStep].Number; n != nil {
		t.SequenceStep = int(*n)
	}
	if n := p[TemplatePropDaysAfter].Number; n != nil {
		t.DaysAfter = int(*n)
	}
	return t
}

func (t Template) Properties() store.Properties {
	props := store.Properties{
		TemplatePropTitle:        store.Text(t.Name),
		TemplatePropSequenceStep: store.Number(float64(t.SequenceStep)),
		TemplatePropSubjectLine:  store.Text(t.SubjectLine),
		TemplatePropBody:         store.Text(t.Body),
	}
	if t.Sport != "" {
		props[TemplatePropSport] = store.Select(t.Sport)
	}
	if t.SequenceType != "" {
		props[TemplatePropSequenceType] = store.Select(string(t.SequenceType))
	}
	if t.DaysAfter > 0 {
		props[TemplatePropDaysAfter] = store.Number(float64(t.DaysAfter))
	}
	return props
}
