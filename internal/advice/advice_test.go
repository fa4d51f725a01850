package advice

import (
	"testing"

	"github.com/cubeworks/cuberepo/internal/cube"
	"github.com/cubeworks/cuberepo/pkg/models"
)

type namedAdvice string

func (a namedAdvice) Name() string { return string(a) }

func appID() models.AppID {
	return models.NewAppID("acme", "billing", "1.0.0", models.StatusSnapshot, "HEAD")
}

func TestApplyToMatchesRunBinding(t *testing.T) {
	r := NewRegistry()
	r.Add(appID(), "rate*", namedAdvice("audit"))

	c := cube.NewTableCube("rates", cube.NewStrAxis("state", false, "OH"))
	r.ApplyTo(appID(), c)
	if got := len(c.Advices()); got != 1 {
		t.Errorf("advices = %d, want 1 for rates.run()", got)
	}

	other := cube.NewTableCube("fees", cube.NewStrAxis("state", false, "OH"))
	r.ApplyTo(appID(), other)
	if got := len(other.Advices()); got != 0 {
		t.Errorf("advices = %d, want 0 for non-matching name", got)
	}
}

func TestApplyToExpandsMethodAxis(t *testing.T) {
	r := NewRegistry()
	r.Add(appID(), "calc.compute()", namedAdvice("trace"))

	c := cube.NewTableCube("calc",
		cube.NewStrAxis("method", false, "compute", "validate"),
		cube.NewStrAxis("state", false, "OH"),
	)
	r.ApplyTo(appID(), c)
	if got := len(c.Advices()); got != 1 {
		t.Errorf("advices = %d, want exactly the compute() binding", got)
	}
}

func TestRegistrationsAreScopedPerAppID(t *testing.T) {
	r := NewRegistry()
	r.Add(appID(), "*", namedAdvice("everything"))

	other := appID().AsBranch("jane")
	c := cube.NewTableCube("rates", cube.NewStrAxis("state", false, "OH"))
	r.ApplyTo(other, c)
	if got := len(c.Advices()); got != 0 {
		t.Errorf("advices = %d; registrations must not leak across AppIDs", got)
	}
}
